package anchorflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/comalice/anchorflow"
)

type trace struct {
	calls []string
}

func (tr *trace) action(name string) Action {
	return func(ctx context.Context, evt *Event, from, to StateID) error {
		tr.calls = append(tr.calls, name)
		return nil
	}
}

func (tr *trace) failing(name string, err error) Action {
	return func(ctx context.Context, evt *Event, from, to StateID) error {
		tr.calls = append(tr.calls, name)
		return err
	}
}

func (tr *trace) String() string { return strings.Join(tr.calls, ",") }

// Test internal transition only execs action: verifies no entry/exit called.
func TestInternalTransitionExecsActionOnly(t *testing.T) {
	tr := &trace{}
	s := &State{ID: 1, EntryAction: tr.action("entry"), ExitAction: tr.action("exit")}
	s.Transitions = []*Transition{{Event: 1, Action: tr.action("action")}}

	m, err := NewMachine(s)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Send(ctx, Event{ID: 1}); err != nil {
		t.Fatal(err)
	}

	if got := tr.String(); got != "entry,action" {
		t.Errorf("calls = %q, want entry,action", got)
	}
	if m.Current().ID != 1 {
		t.Errorf("expected state unchanged (ID=1), got %d", m.Current().ID)
	}
}

func TestNewMachineValidation(t *testing.T) {
	a := &State{ID: 1, Initial: true}
	stray := &State{ID: 9}

	tests := []struct {
		name   string
		states []*State
	}{
		{"no states", nil},
		{"nil state", []*State{a, nil}},
		{"duplicate id", []*State{a, {ID: 1}}},
		{"two initial", []*State{a, {ID: 2, Initial: true}}},
		{"unknown target", []*State{{ID: 3, Transitions: []*Transition{{Event: 1, Target: stray}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMachine(tt.states...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFirstStateIsDefaultInitial(t *testing.T) {
	m, err := NewMachine(&State{ID: 4}, &State{ID: 5})
	if err != nil {
		t.Fatal(err)
	}
	if m.Current() != nil {
		t.Fatal("current should be nil before Start")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Current().ID != 4 {
		t.Errorf("current = %d, want 4", m.Current().ID)
	}
}

func TestSendBeforeStart(t *testing.T) {
	m, _ := NewMachine(&State{ID: 1})
	if err := m.Send(context.Background(), Event{ID: 1}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestNoTransition(t *testing.T) {
	a := &State{ID: 1, Name: "a"}
	m, _ := NewMachine(a)
	m.NameEvent(7, "poke")
	ctx := context.Background()
	_ = m.Start(ctx)

	err := m.Send(ctx, Event{ID: 7})
	if !errors.Is(err, ErrNoTransition) {
		t.Fatalf("err = %v, want ErrNoTransition", err)
	}
	if !strings.Contains(err.Error(), "poke in a") {
		t.Errorf("err = %q should name event and state", err)
	}
}

func TestGuardsPickFirstPassing(t *testing.T) {
	a := &State{ID: 1}
	b := &State{ID: 2}
	c := &State{ID: 3}
	isTrue := func(ctx context.Context, evt *Event, from, to StateID) (bool, error) {
		return evt.Payload == true, nil
	}
	always := func(ctx context.Context, evt *Event, from, to StateID) (bool, error) { return true, nil }
	a.Transitions = []*Transition{
		{Event: 1, Target: b, Guard: isTrue},
		{Event: 1, Target: c, Guard: always},
	}

	tests := []struct {
		payload any
		want    StateID
	}{
		{true, 2},
		{false, 3},
	}
	for _, tt := range tests {
		m, err := NewMachine(a, b, c)
		if err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()
		_ = m.Start(ctx)
		if err := m.Send(ctx, Event{ID: 1, Payload: tt.payload}); err != nil {
			t.Fatal(err)
		}
		if m.Current().ID != tt.want {
			t.Errorf("payload %v: current = %d, want %d", tt.payload, m.Current().ID, tt.want)
		}
	}
}

func TestGuardError(t *testing.T) {
	boom := errors.New("boom")
	a := &State{ID: 1}
	b := &State{ID: 2}
	a.Transitions = []*Transition{{Event: 1, Target: b, Guard: func(context.Context, *Event, StateID, StateID) (bool, error) {
		return false, boom
	}}}
	m, _ := NewMachine(a, b)
	ctx := context.Background()
	_ = m.Start(ctx)

	if err := m.Send(ctx, Event{ID: 1}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if m.Current().ID != 1 {
		t.Errorf("current = %d, want 1", m.Current().ID)
	}
}

func TestTeardownAll(t *testing.T) {
	for _, teardown := range []bool{false, true} {
		tr := &trace{}
		a := &State{ID: 1, Name: "a", ExitAction: tr.action("exit a")}
		b := &State{ID: 2, Name: "b", ExitAction: tr.action("exit b"), EntryAction: tr.action("enter b")}
		c := &State{ID: 3, Name: "c", ExitAction: tr.action("exit c")}
		a.Transitions = []*Transition{{Event: 1, Target: b, Action: tr.action("action")}}

		m, err := NewMachine(a, b, c)
		if err != nil {
			t.Fatal(err)
		}
		m.SetTeardownAll(teardown)
		ctx := context.Background()
		_ = m.Start(ctx)
		if err := m.Send(ctx, Event{ID: 1}); err != nil {
			t.Fatal(err)
		}

		want := "exit a,action,enter b"
		if teardown {
			want = "exit a,exit c,action,enter b"
		}
		if got := tr.String(); got != want {
			t.Errorf("teardown=%v: calls = %q, want %q", teardown, got, want)
		}
	}
}

func TestActionErrorReentersSource(t *testing.T) {
	boom := errors.New("boom")
	tr := &trace{}
	a := &State{ID: 1, EntryAction: tr.action("enter a"), ExitAction: tr.action("exit a")}
	b := &State{ID: 2, EntryAction: tr.action("enter b")}
	a.Transitions = []*Transition{{Event: 1, Target: b, Action: tr.failing("action", boom)}}

	m, _ := NewMachine(a, b)
	ctx := context.Background()
	_ = m.Start(ctx)

	if err := m.Send(ctx, Event{ID: 1}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if m.Current().ID != 1 {
		t.Errorf("current = %d, want 1", m.Current().ID)
	}
	if got := tr.String(); got != "enter a,exit a,action,enter a" {
		t.Errorf("calls = %q", got)
	}
}

func TestExitAndEntryErrorsKeepSource(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		a, b func(tr *trace) *State
	}{
		{"exit", func(tr *trace) *State {
			return &State{ID: 1, ExitAction: tr.failing("exit a", boom)}
		}, func(tr *trace) *State {
			return &State{ID: 2, EntryAction: tr.action("enter b")}
		}},
		{"entry", func(tr *trace) *State {
			return &State{ID: 1}
		}, func(tr *trace) *State {
			return &State{ID: 2, EntryAction: tr.failing("enter b", boom)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trace{}
			a, b := tt.a(tr), tt.b(tr)
			a.Transitions = []*Transition{{Event: 1, Target: b}}
			m, _ := NewMachine(a, b)
			ctx := context.Background()
			_ = m.Start(ctx)

			if err := m.Send(ctx, Event{ID: 1}); !errors.Is(err, boom) {
				t.Fatalf("err = %v, want boom", err)
			}
			if m.Current().ID != 1 {
				t.Errorf("current = %d, want 1", m.Current().ID)
			}
			if strings.Contains(tr.String(), "enter b") && tt.name == "exit" {
				t.Error("target entered after exit failure")
			}
		})
	}
}

func TestReentrantSendIsQueued(t *testing.T) {
	tr := &trace{}
	a := &State{ID: 1, Name: "a"}
	b := &State{ID: 2, Name: "b"}
	c := &State{ID: 3, Name: "c", EntryAction: tr.action("enter c")}

	var m *Machine
	b.EntryAction = func(ctx context.Context, evt *Event, from, to StateID) error {
		tr.calls = append(tr.calls, "enter b")
		// Processed after this transition completes.
		if err := m.Send(ctx, Event{ID: 2}); err != nil {
			return err
		}
		if m.Current().ID != 1 {
			t.Errorf("current during entry = %d, want 1", m.Current().ID)
		}
		tr.calls = append(tr.calls, "enter b done")
		return nil
	}
	a.Transitions = []*Transition{{Event: 1, Target: b}}
	b.Transitions = []*Transition{{Event: 2, Target: c}}

	var err error
	m, err = NewMachine(a, b, c)
	if err != nil {
		t.Fatal(err)
	}
	var hops []string
	m.OnTransition(func(ctx context.Context, evt *Event, from, to *State) {
		hops = append(hops, from.Name+">"+to.Name)
	})
	ctx := context.Background()
	_ = m.Start(ctx)

	if err := m.Send(ctx, Event{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if m.Current().ID != 3 {
		t.Errorf("current = %d, want 3", m.Current().ID)
	}
	if got := tr.String(); got != "enter b,enter b done,enter c" {
		t.Errorf("calls = %q", got)
	}
	if got := strings.Join(hops, " "); got != "a>b b>c" {
		t.Errorf("hops = %q", got)
	}
}

func TestQueuedErrorsJoined(t *testing.T) {
	a := &State{ID: 1, Name: "a"}
	var m *Machine
	a.Transitions = []*Transition{{Event: 1, Action: func(ctx context.Context, evt *Event, from, to StateID) error {
		return m.Send(ctx, Event{ID: 99})
	}}}
	m, _ = NewMachine(a)
	ctx := context.Background()
	_ = m.Start(ctx)

	if err := m.Send(ctx, Event{ID: 1}); !errors.Is(err, ErrNoTransition) {
		t.Errorf("err = %v, want queued ErrNoTransition", err)
	}
}

func TestHookSeesInternalTransitions(t *testing.T) {
	a := &State{ID: 1, Name: "a"}
	a.Transitions = []*Transition{{Event: 1}}
	m, _ := NewMachine(a)
	var hops int
	m.OnTransition(func(ctx context.Context, evt *Event, from, to *State) {
		if from != to {
			t.Errorf("internal hop %s>%s", from, to)
		}
		hops++
	})
	ctx := context.Background()
	_ = m.Start(ctx)
	_ = m.Send(ctx, Event{ID: 1})
	_ = m.Send(ctx, Event{ID: 1})
	if hops != 2 {
		t.Errorf("hops = %d, want 2", hops)
	}
}

func TestStartIdempotent(t *testing.T) {
	entries := 0
	a := &State{ID: 1, EntryAction: func(context.Context, *Event, StateID, StateID) error {
		entries++
		return nil
	}}
	m, _ := NewMachine(a)
	ctx := context.Background()
	_ = m.Start(ctx)
	_ = m.Start(ctx)
	if entries != 1 {
		t.Errorf("entries = %d, want 1", entries)
	}
}

func TestCanAndEventName(t *testing.T) {
	a := &State{ID: 1}
	a.Transitions = []*Transition{{Event: 1}}
	m, _ := NewMachine(a)
	if m.Can(1) {
		t.Error("Can before Start")
	}
	_ = m.Start(context.Background())
	if !m.Can(1) || m.Can(2) {
		t.Error("Can mismatch")
	}
	m.NameEvent(1, "tick")
	if m.EventName(1) != "tick" || m.EventName(2) != "event(2)" {
		t.Errorf("names = %q %q", m.EventName(1), m.EventName(2))
	}
	if (&State{ID: 5}).String() != "state(5)" {
		t.Error("unnamed state string")
	}
}
