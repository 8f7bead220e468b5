package session

import (
	"errors"
	"time"

	"github.com/comalice/anchorflow/internal/observability"
)

const (
	DefaultScanBudget        = 5 * time.Second
	DefaultPlacementDistance = 1.0
)

// Config holds the tunables of a session.
type Config struct {
	// ScanBudget is the duration passed to MappingSession.StartScan.
	ScanBudget time.Duration
	// PlacementDistance is how far ahead of the viewer objects are placed.
	PlacementDistance float64
	// ScanWatchdog fails a scan that has not reported back within this
	// duration. Zero leaves the scan waiting indefinitely.
	ScanWatchdog time.Duration
}

// DefaultConfig returns the stock session tunables.
func DefaultConfig() Config {
	return Config{
		ScanBudget:        DefaultScanBudget,
		PlacementDistance: DefaultPlacementDistance,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.ScanBudget < 0 || c.PlacementDistance < 0 || c.ScanWatchdog < 0 {
		return c, errors.New("session config: negative value")
	}
	if c.ScanBudget == 0 {
		c.ScanBudget = DefaultScanBudget
	}
	if c.PlacementDistance == 0 {
		c.PlacementDistance = DefaultPlacementDistance
	}
	return c, nil
}

// Dependencies are the collaborators a session drives. All are required.
type Dependencies struct {
	Mapper    MappingSession
	Tracker   TrackingSession
	UI        UI
	Scene     Scene
	Store     ObjectStore
	MapMarker MapMarker
}

func (d Dependencies) validate() error {
	var errs []error
	if d.Mapper == nil {
		errs = append(errs, errors.New("mapper is required"))
	}
	if d.Tracker == nil {
		errs = append(errs, errors.New("tracker is required"))
	}
	if d.UI == nil {
		errs = append(errs, errors.New("ui is required"))
	}
	if d.Scene == nil {
		errs = append(errs, errors.New("scene is required"))
	}
	if d.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	if d.MapMarker == nil {
		errs = append(errs, errors.New("map marker is required"))
	}
	return errors.Join(errs...)
}

// Option configures a Session.
type Option func(*Session)

// WithObserver routes session events to obs.
func WithObserver(obs observability.Observer) Option {
	return func(s *Session) {
		if obs != nil {
			s.observer = obs
		}
	}
}

// WithPersister saves a snapshot after every transition.
func WithPersister(p Persister) Option {
	return func(s *Session) {
		s.persister = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}
