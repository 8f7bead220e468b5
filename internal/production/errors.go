// Package production provides the storage side of a session: the anchor
// object store (text file and SQLite backends), the map presence marker,
// snapshot persistence and visualization.
package production

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	ErrStorageWrite  = errors.New("storage write failed")
	ErrStorageRead   = errors.New("storage read failed")
	ErrStorageFormat = errors.New("storage format invalid")
)

// FormatError reports a record that could not be parsed.
type FormatError struct {
	Line int
	Text string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%v: line %d %q: %v", ErrStorageFormat, e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("%v: %q: %v", ErrStorageFormat, e.Text, e.Err)
}

func (e *FormatError) Unwrap() []error {
	return []error{ErrStorageFormat, e.Err}
}
