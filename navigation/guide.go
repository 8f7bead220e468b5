package navigation

import (
	"context"
	"time"

	"github.com/comalice/anchorflow/spatial"
)

// Line renders a polyline. An empty slice hides it.
type Line interface {
	SetPositions(positions []spatial.Vec3)
}

// PositionSource reports a tracked world position, if one is available.
type PositionSource func() (spatial.Vec3, bool)

// Guide redraws the route from the viewer to a target every frame. Update
// matches realtime.TickFunc.
type Guide struct {
	Planner Planner
	Viewer  PositionSource
	Target  PositionSource
	Line    Line

	last Path
}

// Update recomputes the path. The line shows the corners of a complete path
// and is cleared otherwise. Without a viewer or target nothing changes.
func (g *Guide) Update(_ context.Context, _ time.Time) {
	if g.Planner == nil || g.Line == nil || g.Viewer == nil || g.Target == nil {
		return
	}
	from, ok := g.Viewer()
	if !ok {
		return
	}
	to, ok := g.Target()
	if !ok {
		return
	}

	g.last = g.Planner.CalculatePath(from, to)
	if g.last.Status == Complete {
		g.Line.SetPositions(g.last.Corners)
		return
	}
	g.Line.SetPositions(nil)
}

// LastPath returns the result of the most recent Update.
func (g *Guide) LastPath() Path { return g.last }
