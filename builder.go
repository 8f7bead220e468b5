package anchorflow

import (
	"fmt"
)

// MachineBuilder provides a fluent API for constructing state machines using string-based state names
// instead of manual integer-based State struct creation.
type MachineBuilder struct {
	nextID      StateID
	nextEventID EventID
	nameToID    map[string]StateID
	idToName    map[StateID]string
	eventIDs    map[string]EventID
	states      map[StateID]*State
	order       []*State
	initialName string
	refs        []pendingRef
}

// StateBuilder provides fluent methods for configuring individual states.
type StateBuilder struct {
	b     *MachineBuilder
	state *State
	name  string
}

type pendingRef struct {
	from   string
	target string
	trans  *Transition
}

// NewMachineBuilder creates a new builder. initialStateName is the state the
// machine enters on Start.
func NewMachineBuilder(initialStateName string) *MachineBuilder {
	return &MachineBuilder{
		nextID:      1,
		nextEventID: 1,
		nameToID:    make(map[string]StateID),
		idToName:    make(map[StateID]string),
		eventIDs:    make(map[string]EventID),
		states:      make(map[StateID]*State),
		initialName: initialStateName,
	}
}

// State creates or retrieves a state by name.
func (b *MachineBuilder) State(name string) *StateBuilder {
	id := b.assignID(name)
	state := b.states[id]
	if state == nil {
		state = &State{ID: id, Name: name}
		b.states[id] = state
		b.order = append(b.order, state)
	}
	return &StateBuilder{b: b, state: state, name: name}
}

// Build validates the state machine configuration and constructs the Machine.
// Returns an error if the configuration is invalid.
func (b *MachineBuilder) Build() (*Machine, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	for _, ref := range b.refs {
		ref.trans.Target = b.states[b.nameToID[ref.target]]
	}

	initialID := b.nameToID[b.initialName]
	for _, s := range b.order {
		s.Initial = s.ID == initialID
	}

	m, err := NewMachine(b.order...)
	if err != nil {
		return nil, err
	}
	for name, id := range b.eventIDs {
		m.NameEvent(id, name)
	}
	return m, nil
}

// GetID returns the assigned StateID for a given state name.
// Returns 0 if the name hasn't been registered.
func (b *MachineBuilder) GetID(name string) StateID {
	return b.nameToID[name]
}

// GetName returns the name for a given StateID.
// Returns empty string if the ID doesn't exist.
func (b *MachineBuilder) GetName(id StateID) string {
	return b.idToName[id]
}

// EventID returns the ID for a named event, assigning one on first use.
func (b *MachineBuilder) EventID(name string) EventID {
	if id, ok := b.eventIDs[name]; ok {
		return id
	}
	id := b.nextEventID
	b.nextEventID++
	b.eventIDs[name] = id
	return id
}

// assignID returns the existing ID for a name, or creates a new sequential ID.
// This ensures deterministic ID assignment.
func (b *MachineBuilder) assignID(name string) StateID {
	if id, exists := b.nameToID[name]; exists {
		return id
	}

	id := b.nextID
	b.nextID++
	b.nameToID[name] = id
	b.idToName[id] = name
	return id
}

// validate checks that the state machine configuration is valid.
func (b *MachineBuilder) validate() error {
	if len(b.order) == 0 {
		return fmt.Errorf("machine has no states")
	}
	if _, ok := b.nameToID[b.initialName]; !ok || b.states[b.nameToID[b.initialName]] == nil {
		return fmt.Errorf("initial state %q is not defined", b.initialName)
	}
	for _, ref := range b.refs {
		id, ok := b.nameToID[ref.target]
		if !ok || b.states[id] == nil {
			// Referenced but never declared with State().
			return fmt.Errorf("state %s has transition to unknown target state %q", ref.from, ref.target)
		}
	}
	return nil
}

// StateBuilder fluent methods

// Entry sets the entry action for this state.
// The action will be executed when entering this state.
func (sb *StateBuilder) Entry(action Action) *StateBuilder {
	sb.state.EntryAction = action
	return sb
}

// Exit sets the exit action for this state.
// The action will be executed when exiting this state.
func (sb *StateBuilder) Exit(action Action) *StateBuilder {
	sb.state.ExitAction = action
	return sb
}

// On adds an external transition triggered by event to the target state.
// Targets may be declared later; they are resolved on Build.
func (sb *StateBuilder) On(event, target string, guard Guard, action Action) *StateBuilder {
	t := &Transition{
		Event:  sb.b.EventID(event),
		Label:  event,
		Source: sb.state,
		Guard:  guard,
		Action: action,
	}
	sb.b.refs = append(sb.b.refs, pendingRef{from: sb.name, target: target, trans: t})
	sb.state.Transitions = append(sb.state.Transitions, t)
	return sb
}

// OnInternal adds an internal transition: the action runs, no exit or entry.
func (sb *StateBuilder) OnInternal(event string, guard Guard, action Action) *StateBuilder {
	sb.state.Transitions = append(sb.state.Transitions, &Transition{
		Event:  sb.b.EventID(event),
		Label:  event,
		Source: sb.state,
		Guard:  guard,
		Action: action,
	})
	return sb
}

// Initial marks this state as the one entered on Start.
func (sb *StateBuilder) Initial() *StateBuilder {
	sb.b.initialName = sb.name
	return sb
}
