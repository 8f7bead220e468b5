package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/anchorflow/internal/production"
	"github.com/comalice/anchorflow/spatial"
)

// MappingSession scans the environment for a bounded duration and reports
// success or failure at most once per StartScan.
type MappingSession interface {
	// Subscribe registers fn for completion reports. The returned cancel
	// function removes it and must be safe to call more than once.
	Subscribe(fn func(success bool)) (cancel func())
	StartScan(budget time.Duration)
	StopMapping()
	ClearAllState()
}

// TrackingSession localizes against the loaded map. Status reports may fire
// any number of times.
type TrackingSession interface {
	Subscribe(fn func(localized bool)) (cancel func())
	StartTracking()
	// Anchor returns the world pose of the session anchor once localized.
	Anchor() (spatial.Pose, bool)
	WorldToAnchorLocal(world spatial.Vec3) spatial.Vec3
	ClearAllState()
}

// UI is the phase-scoped presentation surface.
type UI interface {
	Show(p Phase)
	Hide(p Phase)
	SetInteractable(c Control, on bool)
	SetStatus(msg string)
	SetBusy(busy bool)
}

// Scene hosts live placed objects.
type Scene interface {
	Spawn(obj PlacedObject) error
	Destroy(id uuid.UUID)
}

// ObjectStore persists anchor-local object positions wholesale.
type ObjectStore interface {
	Exists(ctx context.Context) bool
	Save(ctx context.Context, positions []spatial.Vec3) error
	Load(ctx context.Context) ([]spatial.Vec3, error)
	Delete(ctx context.Context) error
}

// MapMarker reports whether a saved map is available to load.
type MapMarker interface {
	Exists() bool
}

// Persister receives a snapshot after every transition.
type Persister interface {
	Save(ctx context.Context, snapshot production.Snapshot) error
}

var (
	_ ObjectStore = (*production.FileStore)(nil)
	_ ObjectStore = (*production.SQLiteStore)(nil)
	_ MapMarker   = (*production.MapMarker)(nil)
	_ Persister   = (*production.YAMLPersister)(nil)
)
