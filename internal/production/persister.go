package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/anchorflow/spatial"
)

// Snapshot is the serializable state of a session after a transition.
type Snapshot struct {
	SessionID string         `yaml:"sessionID"`
	Phase     string         `yaml:"phase"`
	From      string         `yaml:"from,omitempty"`
	Event     string         `yaml:"event,omitempty"`
	Objects   []spatial.Vec3 `yaml:"objects,omitempty"`
	Timestamp time.Time      `yaml:"timestamp"`
}

// YAMLPersister is a file-based persister using YAML serialization for Snapshot.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) Save(ctx context.Context, snapshot Snapshot) error {
	if snapshot.SessionID == "" {
		return errors.New("snapshot has no session ID")
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	fn := filepath.Join(p.dir, snapshot.SessionID+".yaml")
	tmp, err := os.CreateTemp(p.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, fn, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, fn, err)
	}
	if err := tmp.Chmod(replacementMode(fn)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, fn, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, fn, err)
	}
	if err := os.Rename(tmp.Name(), fn); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, fn, err)
	}
	return nil
}

func (p *YAMLPersister) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	fn := filepath.Join(p.dir, sessionID+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("session %q: %w", sessionID, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	snapshot.SessionID = sessionID // Ensure ID

	return snapshot, nil
}
