// Package builder constructs anchorflow states with functional options, for
// machines assembled from numeric IDs rather than names.
package builder

import (
	"github.com/comalice/anchorflow" // the core package
)

// ID shortcut
type ID = anchorflow.StateID

// New creates a state with no transitions.
func New(id ID, opts ...Option) *anchorflow.State {
	s := &anchorflow.State{ID: id}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option pattern for configuring states
type Option func(*anchorflow.State)

// Named sets the display name.
func Named(name string) Option {
	return func(s *anchorflow.State) { s.Name = name }
}

// Initial marks the state entered on Start.
func Initial() Option {
	return func(s *anchorflow.State) { s.Initial = true }
}

// OnEntry sets the action run when the state is entered.
func OnEntry(act anchorflow.Action) Option {
	return func(s *anchorflow.State) { s.OnEntry(act) }
}

// OnExit sets the action run when the state is exited.
func OnExit(act anchorflow.Action) Option {
	return func(s *anchorflow.State) { s.OnExit(act) }
}

// On adds an outbound transition to target.
func On(event anchorflow.EventID, target *anchorflow.State, opts ...TransOption) Option {
	return func(s *anchorflow.State) {
		t := &anchorflow.Transition{
			Event:  event,
			Source: s,
			Target: target,
		}
		// optional guard and/or action
		for _, opt := range opts {
			opt(t)
		}
		s.Transitions = append(s.Transitions, t)
	}
}

// Internal adds a transition that runs its action without leaving the state.
func Internal(event anchorflow.EventID, opts ...TransOption) Option {
	return On(event, nil, opts...)
}

type TransOption func(*anchorflow.Transition)

func WithGuard(g anchorflow.Guard) TransOption {
	return func(t *anchorflow.Transition) { t.Guard = g }
}

func WithAction(act anchorflow.Action) TransOption {
	return func(t *anchorflow.Transition) { t.Action = act }
}

func WithLabel(label string) TransOption {
	return func(t *anchorflow.Transition) { t.Label = label }
}

// Link adds a transition from s to target after both exist, for cycles.
func Link(s, target *anchorflow.State, event anchorflow.EventID, opts ...TransOption) {
	On(event, target, opts...)(s)
}
