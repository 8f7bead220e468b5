package production

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/comalice/anchorflow/spatial"
)

// Default file names inside the storage directory.
const (
	DefaultMapFile     = "ADHocMapFile"
	DefaultObjectsFile = "ADHocObjectsFile"
)

// FileStore keeps the anchor object record as a text file. It assumes a
// single writer per path.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for dir/name. An empty name selects
// DefaultObjectsFile.
func NewFileStore(dir, name string) *FileStore {
	if name == "" {
		name = DefaultObjectsFile
	}
	return &FileStore{path: filepath.Join(dir, name)}
}

// Path returns the record file path.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether a record file is present. Content is not inspected.
func (s *FileStore) Exists(_ context.Context) bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Save replaces the record with positions. The new content is written to a
// temporary file in the same directory and renamed over the old one, so a
// reader sees either the complete old or the complete new record.
func (s *FileStore) Save(ctx context.Context, positions []spatial.Vec3) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, s.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".objects-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, s.path, err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, s.path, err)
	}

	if err := EncodePositions(tmp, positions); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(replacementMode(s.path)); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", ErrStorageWrite, s.path, err)
	}
	return nil
}

// defaultFileMode applies to records and snapshots written for the first time.
const defaultFileMode os.FileMode = 0o644

// replacementMode returns the permissions a file replacing path should get:
// those of the existing file, or defaultFileMode.
func replacementMode(path string) os.FileMode {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return defaultFileMode
	}
	return info.Mode().Perm()
}

// Load returns the stored positions in file order. A missing record yields
// an empty slice and no error.
func (s *FileStore) Load(ctx context.Context) ([]spatial.Vec3, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []spatial.Vec3{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrStorageRead, s.path, err)
	}
	defer f.Close()

	positions, err := DecodePositions(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return positions, nil
}

// Delete removes the record. Deleting a missing record is a no-op.
func (s *FileStore) Delete(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %w", ErrStorageWrite, s.path, err)
	}
	return nil
}
