// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/anchorflow"
	"github.com/comalice/anchorflow/builder"
	"github.com/comalice/anchorflow/internal/production"
	"github.com/comalice/anchorflow/spatial"
)

// TickEvent drives every generated machine.
const TickEvent anchorflow.EventID = 1

// GenFlatMachine creates a flat machine with n states cycling via TickEvent.
func GenFlatMachine(n int, teardownAll bool) *anchorflow.Machine {
	if n < 1 {
		n = 1
	}
	states := make([]*anchorflow.State, n)
	for i := range states {
		states[i] = builder.New(anchorflow.StateID(i+1), builder.Named(fmt.Sprintf("s%d", i)))
	}
	states[0].Initial = true
	for i, s := range states {
		builder.Link(s, states[(i+1)%n], TickEvent)
	}
	m, err := anchorflow.NewMachine(states...)
	if err != nil {
		panic(err)
	}
	m.SetTeardownAll(teardownAll)
	return m
}

// ReturnEvent moves a GenWideTransitions machine back to its main state.
const ReturnEvent = TickEvent + 1

// GenWideTransitions creates one state with many guarded TickEvent
// transitions where only the last guard passes.
func GenWideTransitions(numTransitions int) *anchorflow.Machine {
	target := builder.New(2, builder.Named("target"))
	opts := []builder.Option{builder.Named("main"), builder.Initial()}
	for i := 0; i < numTransitions; i++ {
		pass := i == numTransitions-1
		opts = append(opts, builder.On(TickEvent, target, builder.WithGuard(
			func(context.Context, *anchorflow.Event, anchorflow.StateID, anchorflow.StateID) (bool, error) {
				return pass, nil
			})))
	}
	main := builder.New(1, opts...)
	builder.Link(target, main, ReturnEvent)
	m, err := anchorflow.NewMachine(main, target)
	if err != nil {
		panic(err)
	}
	return m
}

// GenPositions returns n distinct positions with non-trivial decimals.
func GenPositions(n int) []spatial.Vec3 {
	out := make([]spatial.Vec3, n)
	for i := range out {
		f := float64(i)
		out[i] = spatial.Vec3{X: f * 0.1, Y: 1.0 / (f + 3), Z: -f * 1.7}
	}
	return out
}

// GenSnapshotYAML serializes a session snapshot carrying numObjects objects.
func GenSnapshotYAML(numObjects int) []byte {
	snap := production.Snapshot{
		SessionID: "bench",
		Phase:     "in_session",
		From:      "localizing",
		Event:     "tracking_status",
		Objects:   GenPositions(numObjects),
		Timestamp: time.Unix(0, 0).UTC(),
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		panic(err)
	}
	return data
}
