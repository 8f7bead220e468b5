// Package navigation computes walkable routes between world points and
// renders them each frame as a guide line.
package navigation

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/comalice/anchorflow/spatial"
)

// Status reports how much of a requested route was found.
type Status int

const (
	// Invalid means no route exists.
	Invalid Status = iota
	// Partial means the route ends at the closest reachable point to the
	// target.
	Partial
	// Complete means the route reaches the target.
	Complete
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	default:
		return "invalid"
	}
}

// Path is a route as a polyline of corners, starting at the origin.
type Path struct {
	Status  Status
	Corners []spatial.Vec3
}

// Length returns the summed segment length of the path.
func (p Path) Length() float64 {
	var total float64
	for i := 1; i < len(p.Corners); i++ {
		total += p.Corners[i-1].Distance(p.Corners[i])
	}
	return total
}

// Planner answers shortest-path queries.
type Planner interface {
	CalculatePath(from, to spatial.Vec3) Path
}

// WaypointPlanner searches a graph of walkable waypoints joined by
// bidirectional edges. Query endpoints snap to the nearest waypoint within
// SnapRadius.
type WaypointPlanner struct {
	SnapRadius float64

	points []spatial.Vec3
	edges  [][]int
}

// NewWaypointPlanner returns an empty graph.
func NewWaypointPlanner(snapRadius float64) *WaypointPlanner {
	return &WaypointPlanner{SnapRadius: snapRadius}
}

// AddWaypoint adds a node and returns its index.
func (p *WaypointPlanner) AddWaypoint(pos spatial.Vec3) int {
	p.points = append(p.points, pos)
	p.edges = append(p.edges, nil)
	return len(p.points) - 1
}

// Connect joins two waypoints in both directions.
func (p *WaypointPlanner) Connect(a, b int) error {
	if a < 0 || a >= len(p.points) || b < 0 || b >= len(p.points) {
		return fmt.Errorf("connect %d-%d: waypoint out of range [0,%d)", a, b, len(p.points))
	}
	if a == b {
		return fmt.Errorf("connect %d-%d: self loop", a, b)
	}
	p.edges[a] = append(p.edges[a], b)
	p.edges[b] = append(p.edges[b], a)
	return nil
}

// Chain adds the positions as waypoints joined in sequence and returns
// their indices.
func (p *WaypointPlanner) Chain(positions ...spatial.Vec3) []int {
	ids := make([]int, len(positions))
	for i, pos := range positions {
		ids[i] = p.AddWaypoint(pos)
		if i > 0 {
			_ = p.Connect(ids[i-1], ids[i])
		}
	}
	return ids
}

// CalculatePath returns the shortest route from from to to. A target off the
// graph yields a Partial route to the reachable waypoint closest to it; an
// origin off the graph, or a disconnected target, yields Invalid.
func (p *WaypointPlanner) CalculatePath(from, to spatial.Vec3) Path {
	start, ok := p.snap(from)
	if !ok {
		return Path{Status: Invalid}
	}

	goal, ok := p.snap(to)
	if ok {
		route := p.search(start, goal)
		if route == nil {
			return Path{Status: Invalid}
		}
		return Path{Status: Complete, Corners: p.corners(from, route, &to)}
	}

	nearest := p.closestReachable(start, to)
	route := p.search(start, nearest)
	return Path{Status: Partial, Corners: p.corners(from, route, nil)}
}

func (p *WaypointPlanner) snap(pos spatial.Vec3) (int, bool) {
	best, bestDist := -1, math.Inf(1)
	for i, wp := range p.points {
		if d := wp.Distance(pos); d <= p.SnapRadius && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

func (p *WaypointPlanner) corners(from spatial.Vec3, route []int, to *spatial.Vec3) []spatial.Vec3 {
	out := make([]spatial.Vec3, 0, len(route)+2)
	out = append(out, from)
	for _, id := range route {
		if pt := p.points[id]; !pt.ApproxEqual(out[len(out)-1], 1e-9) {
			out = append(out, pt)
		}
	}
	if to != nil && !to.ApproxEqual(out[len(out)-1], 1e-9) {
		out = append(out, *to)
	}
	return out
}

// closestReachable walks the component containing start.
func (p *WaypointPlanner) closestReachable(start int, target spatial.Vec3) int {
	seen := map[int]bool{start: true}
	queue := []int{start}
	best, bestDist := start, p.points[start].Distance(target)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if d := p.points[n].Distance(target); d < bestDist {
			best, bestDist = n, d
		}
		for _, next := range p.edges[n] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return best
}

// search is A* with straight-line distance as the heuristic. It returns the
// waypoint sequence from start to goal, or nil when goal is unreachable.
func (p *WaypointPlanner) search(start, goal int) []int {
	cost := map[int]float64{start: 0}
	prev := map[int]int{}
	closed := map[int]bool{}

	open := &frontier{}
	heap.Push(open, &node{id: start, priority: p.points[start].Distance(p.points[goal])})

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if cur.id == goal {
			return unwind(prev, start, goal)
		}
		if closed[cur.id] {
			continue
		}
		closed[cur.id] = true

		for _, next := range p.edges[cur.id] {
			if closed[next] {
				continue
			}
			c := cost[cur.id] + p.points[cur.id].Distance(p.points[next])
			if old, seen := cost[next]; seen && c >= old {
				continue
			}
			cost[next] = c
			prev[next] = cur.id
			heap.Push(open, &node{id: next, priority: c + p.points[next].Distance(p.points[goal])})
		}
	}
	return nil
}

func unwind(prev map[int]int, start, goal int) []int {
	route := []int{goal}
	for n := goal; n != start; {
		n = prev[n]
		route = append(route, n)
	}
	for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
		route[i], route[j] = route[j], route[i]
	}
	return route
}

type node struct {
	id       int
	priority float64
}

// frontier is a min-heap of nodes by priority.
type frontier []*node

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].priority < f[j].priority }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(*node)) }
func (f *frontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	*f = old[:len(old)-1]
	return n
}
