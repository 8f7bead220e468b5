package anchorflow_test

import (
	"context"
	"strings"
	"testing"

	. "github.com/comalice/anchorflow"
)

func TestBuilderTrafficLight(t *testing.T) {
	b := NewMachineBuilder("green")

	b.State("green").On("timer", "yellow", nil, nil)
	b.State("yellow").On("timer", "red", nil, nil)
	b.State("red").On("timer", "green", nil, nil)

	machine, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := machine.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if machine.Current().ID != b.GetID("green") {
		t.Error("should start in green")
	}

	timer := Event{ID: b.EventID("timer")}
	for _, want := range []string{"yellow", "red", "green"} {
		if err := machine.Send(ctx, timer); err != nil {
			t.Fatal(err)
		}
		if got := b.GetName(machine.Current().ID); got != want {
			t.Errorf("current = %s, want %s", got, want)
		}
	}
	if machine.EventName(timer.ID) != "timer" {
		t.Errorf("event name = %q", machine.EventName(timer.ID))
	}
}

func TestBuilderForwardReferences(t *testing.T) {
	b := NewMachineBuilder("a")
	b.State("a").On("go", "later", nil, nil)
	b.State("later")

	m, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	_ = m.Start(context.Background())
	if err := m.Send(context.Background(), Event{ID: b.EventID("go")}); err != nil {
		t.Fatal(err)
	}
	if m.Current().Name != "later" {
		t.Errorf("current = %s", m.Current())
	}
}

func TestBuilderEntryExitInternal(t *testing.T) {
	var calls []string
	rec := func(name string) Action {
		return func(context.Context, *Event, StateID, StateID) error {
			calls = append(calls, name)
			return nil
		}
	}
	b := NewMachineBuilder("idle")
	b.State("idle").
		Entry(rec("enter idle")).
		Exit(rec("exit idle")).
		OnInternal("ping", nil, rec("ping")).
		On("run", "busy", nil, rec("run"))
	b.State("busy").Entry(rec("enter busy"))

	m, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = m.Start(ctx)
	_ = m.Send(ctx, Event{ID: b.EventID("ping")})
	_ = m.Send(ctx, Event{ID: b.EventID("run")})

	want := "enter idle,ping,exit idle,run,enter busy"
	if got := strings.Join(calls, ","); got != want {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestBuilderInitialOverride(t *testing.T) {
	b := NewMachineBuilder("a")
	b.State("a")
	b.State("b").Initial()
	m, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	_ = m.Start(context.Background())
	if m.Current().Name != "b" {
		t.Errorf("current = %s, want b", m.Current())
	}
}

func TestBuilderDeterministicIDs(t *testing.T) {
	b := NewMachineBuilder("x")
	b.State("x")
	b.State("y")
	b.State("x")
	if b.GetID("x") != 1 || b.GetID("y") != 2 || b.GetID("z") != 0 {
		t.Errorf("ids = %d %d %d", b.GetID("x"), b.GetID("y"), b.GetID("z"))
	}
	if b.EventID("e") != b.EventID("e") {
		t.Error("event ids not stable")
	}
	if b.GetName(2) != "y" || b.GetName(9) != "" {
		t.Error("GetName mismatch")
	}
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() *MachineBuilder
		want  string
	}{
		{"empty", func() *MachineBuilder { return NewMachineBuilder("a") }, "no states"},
		{"missing initial", func() *MachineBuilder {
			b := NewMachineBuilder("nope")
			b.State("a")
			return b
		}, "initial state"},
		{"unknown target", func() *MachineBuilder {
			b := NewMachineBuilder("a")
			b.State("a").On("go", "ghost", nil, nil)
			return b
		}, `unknown target state "ghost"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
