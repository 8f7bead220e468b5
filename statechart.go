package anchorflow

import (
	"context"
	"errors"
	"fmt"
)

type StateID int
type EventID int

type Event struct {
	ID      EventID
	Payload any
}

type Action func(ctx context.Context, evt *Event, from StateID, to StateID) error
type Guard func(ctx context.Context, evt *Event, from StateID, to StateID) (bool, error)

// TransitionHook observes completed transitions. For internal transitions
// from and to are the same state.
type TransitionHook func(ctx context.Context, evt *Event, from, to *State)

var (
	ErrNotStarted   = errors.New("machine not started")
	ErrNoTransition = errors.New("no transition for event")
)

// ---

type State struct {
	ID          StateID
	Name        string
	Transitions []*Transition
	EntryAction Action
	ExitAction  Action
	Initial     bool
}

type Transition struct {
	Event  EventID
	Label  string
	Source *State
	Target *State // nil --> internal transition
	Guard  Guard  // nil --> always taken
	Action Action // nil --> do nothing
}

// Machine is a flat set of states with helper functions for chart evaluation.
// It is not safe for concurrent use; drive it from a single goroutine.
type Machine struct {
	order       []*State
	states      map[StateID]*State
	initial     *State
	current     *State
	eventNames  map[EventID]string
	teardownAll bool
	hook        TransitionHook

	busy    bool
	pending []Event
}

//
// Public API
//

// OnEntry sets the action run when s is entered.
func (s *State) OnEntry(action Action) {
	s.EntryAction = action
}

// OnExit sets the action run when s is exited.
func (s *State) OnExit(action Action) {
	s.ExitAction = action
}

func (s *State) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("state(%d)", s.ID)
}

func NewMachine(states ...*State) (*Machine, error) {
	if len(states) == 0 {
		return nil, errors.New("no states provided")
	}
	m := &Machine{
		order:      states,
		states:     map[StateID]*State{},
		eventNames: map[EventID]string{},
	}

	// Build LUT and find initial state.
	var initial *State
	for _, s := range states {
		if s == nil {
			return nil, errors.New("nil state")
		}
		if _, exists := m.states[s.ID]; exists {
			return nil, fmt.Errorf("duplicate state ID %d", s.ID)
		}
		m.states[s.ID] = s
		if s.Initial {
			if initial != nil {
				return nil, errors.New("more than one initial state")
			}
			initial = s
		}
	}

	if initial == nil {
		initial = states[0] // First state is assigned as initial.
	}
	m.initial = initial

	for _, s := range states {
		for _, t := range s.Transitions {
			if t == nil {
				continue
			}
			if t.Source == nil {
				t.Source = s
			}
			if t.Target != nil {
				if _, ok := m.states[t.Target.ID]; !ok {
					return nil, fmt.Errorf("state %s has transition to unknown state %s", s, t.Target)
				}
			}
		}
	}

	return m, nil
}

// SetTeardownAll switches external transitions to exit every state other than
// the target, not only the source. Exit actions must then be idempotent.
func (m *Machine) SetTeardownAll(on bool) {
	m.teardownAll = on
}

// OnTransition registers a hook run after each completed transition.
func (m *Machine) OnTransition(hook TransitionHook) {
	m.hook = hook
}

// NameEvent attaches a display name to an event ID for errors and visualizers.
func (m *Machine) NameEvent(id EventID, name string) {
	m.eventNames[id] = name
}

// EventName returns the display name of an event ID.
func (m *Machine) EventName(id EventID) string {
	if name, ok := m.eventNames[id]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", id)
}

// Start enters machine initial state.
func (m *Machine) Start(ctx context.Context) error {
	if m.current != nil {
		return nil
	}
	m.busy = true
	err := m.initial.enterState(ctx, nil, m.initial.ID, m.initial.ID)
	if err != nil {
		m.busy = false
		m.pending = nil
		return err
	}
	m.current = m.initial
	return m.drain(ctx, nil)
}

// Send processes evt to completion. Events sent from inside an action are
// queued and processed once the running transition finishes.
func (m *Machine) Send(ctx context.Context, evt Event) error {
	if m.current == nil {
		if m.busy {
			m.pending = append(m.pending, evt)
			return nil
		}
		return ErrNotStarted
	}
	if m.busy {
		m.pending = append(m.pending, evt)
		return nil
	}

	m.busy = true
	err := m.step(ctx, evt)
	return m.drain(ctx, err)
}

// Current returns the active state, or nil before Start.
func (m *Machine) Current() *State {
	return m.current
}

// States returns the states in declaration order.
func (m *Machine) States() []*State {
	out := make([]*State, len(m.order))
	copy(out, m.order)
	return out
}

// Can reports whether evt would currently select a transition, ignoring guards.
func (m *Machine) Can(id EventID) bool {
	if m.current == nil {
		return false
	}
	for _, t := range m.current.Transitions {
		if t != nil && t.Event == id {
			return true
		}
	}
	return false
}

//
// Helper Functions (internal API)
//

func (m *Machine) drain(ctx context.Context, first error) error {
	errs := []error{first}
	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		errs = append(errs, m.step(ctx, next))
	}
	m.busy = false
	return errors.Join(errs...)
}

func (m *Machine) step(ctx context.Context, evt Event) error {
	t, err := m.pickTransition(ctx, m.current, &evt)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: %s in %s", ErrNoTransition, m.EventName(evt.ID), m.current)
	}

	prev := m.current
	next, err := m.doTransition(ctx, t, &evt)
	m.current = next
	if err != nil {
		return err
	}
	if m.hook != nil {
		m.hook(ctx, &evt, prev, next)
	}
	return nil
}

func (t *State) evaluateEntryAction(ctx context.Context, evt *Event, sourceID StateID, targetID StateID) error {
	if t.EntryAction != nil {
		return t.EntryAction(ctx, evt, sourceID, targetID)
	}
	return nil
}

func (t *State) evaluateExitAction(ctx context.Context, evt *Event, sourceID StateID, targetID StateID) error {
	if t.ExitAction != nil {
		return t.ExitAction(ctx, evt, sourceID, targetID)
	}
	return nil
}

// enterState enters a target state.
func (s *State) enterState(ctx context.Context, evt *Event, from StateID, to StateID) error {
	if err := s.evaluateEntryAction(ctx, evt, from, to); err != nil {
		return fmt.Errorf("enter %s: %w", s, err)
	}
	return nil
}

// exitState exits a target state.
func (s *State) exitState(ctx context.Context, evt *Event, from StateID, to StateID) error {
	if err := s.evaluateExitAction(ctx, evt, from, to); err != nil {
		return fmt.Errorf("exit %s: %w", s, err)
	}
	return nil
}

// pickTransition grabs the _first_ transition whose event matches and whose
// guard passes, in document order.
func (m *Machine) pickTransition(ctx context.Context, s *State, evt *Event) (*Transition, error) {
	for _, t := range s.Transitions {
		if t == nil {
			continue
		}
		if t.Event != evt.ID {
			continue
		}
		pass, err := t.evaluateGuard(ctx, evt, t.Source.ID, t.targetID())
		if err != nil {
			return nil, fmt.Errorf("guard %s on %s: %w", m.EventName(evt.ID), s, err)
		}
		if pass {
			return t, nil
		}
	}
	return nil, nil
}

func (t *Transition) targetID() StateID {
	if t.Target == nil {
		return t.Source.ID
	}
	return t.Target.ID
}

func (t *Transition) evaluateGuard(ctx context.Context, evt *Event, sourceID StateID, targetID StateID) (bool, error) {
	if t.Guard != nil {
		return t.Guard(ctx, evt, sourceID, targetID)
	}
	return true, nil
}

func (t *Transition) evaluateAction(ctx context.Context, evt *Event, sourceID StateID, targetID StateID) error {
	if t.Action != nil {
		return t.Action(ctx, evt, sourceID, targetID)
	}
	return nil
}

// exitSet lists the states to exit for t, in declaration order.
func (m *Machine) exitSet(t *Transition) []*State {
	if !m.teardownAll {
		return []*State{t.Source}
	}
	out := make([]*State, 0, len(m.order))
	for _, s := range m.order {
		if s.ID == t.Target.ID {
			continue
		}
		out = append(out, s)
	}
	return out
}

// doTransition evaluates a transition and returns the resulting state.
func (m *Machine) doTransition(ctx context.Context, t *Transition, evt *Event) (*State, error) {
	// Internal transition: action only.
	if t.Target == nil {
		if err := t.evaluateAction(ctx, evt, t.Source.ID, t.Source.ID); err != nil {
			return t.Source, err
		}
		return t.Source, nil
	}

	for _, s := range m.exitSet(t) {
		if err := s.exitState(ctx, evt, t.Source.ID, t.Target.ID); err != nil {
			return t.Source, err
		}
	}

	if err := t.evaluateAction(ctx, evt, t.Source.ID, t.Target.ID); err != nil {
		// Rewind to previous state.
		if rerr := t.Source.enterState(ctx, nil, t.Source.ID, t.Source.ID); rerr != nil {
			return t.Source, errors.Join(err, rerr)
		}
		return t.Source, err
	}

	if err := t.Target.enterState(ctx, evt, t.Source.ID, t.Target.ID); err != nil {
		return t.Source, err
	}

	return t.Target, nil
}
