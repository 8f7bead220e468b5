package production

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MapMarker is the presence marker for a saved device map. The session only
// asks whether it exists; mapping engines and tools create and clear it.
type MapMarker struct {
	path string
}

// NewMapMarker creates a marker for dir/name. An empty name selects
// DefaultMapFile.
func NewMapMarker(dir, name string) *MapMarker {
	if name == "" {
		name = DefaultMapFile
	}
	return &MapMarker{path: filepath.Join(dir, name)}
}

func (m *MapMarker) Path() string {
	return m.path
}

// Exists reports whether the marker file is present.
func (m *MapMarker) Exists() bool {
	info, err := os.Stat(m.path)
	return err == nil && info.Mode().IsRegular()
}

// Mark creates or refreshes the marker.
func (m *MapMarker) Mark() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, m.path, err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(m.path, []byte(stamp), 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, m.path, err)
	}
	return nil
}

// Clear removes the marker; a missing marker is not an error.
func (m *MapMarker) Clear() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, m.path, err)
	}
	return nil
}
