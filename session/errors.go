package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPrecondition reports an operation invoked in the wrong phase or
	// without its prerequisites.
	ErrPrecondition = errors.New("precondition violated")

	// ErrNoMap is returned by RequestLoad when no saved map exists.
	ErrNoMap = fmt.Errorf("%w: no saved map to load", ErrPrecondition)

	// ErrScanInFlight is returned by RetryScan while a scan attempt is running.
	ErrScanInFlight = fmt.Errorf("%w: scan already in flight", ErrPrecondition)

	// ErrDuplicateSubscription is returned when a phase already holds a
	// subscription to the same source.
	ErrDuplicateSubscription = errors.New("duplicate subscription")
)

// PhaseError reports an operation invoked outside the phases that allow it.
type PhaseError struct {
	Op      string
	Phase   Phase
	Allowed []Phase
}

func (e *PhaseError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, p := range e.Allowed {
		allowed[i] = string(p)
	}
	phase := string(e.Phase)
	if phase == "" {
		phase = "not started"
	}
	return fmt.Sprintf("%s: invalid in phase %s (allowed: %s)", e.Op, phase, strings.Join(allowed, ", "))
}

func (e *PhaseError) Unwrap() error { return ErrPrecondition }
