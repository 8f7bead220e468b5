package realtime

import (
	"context"
	"sort"
)

// Work is a unit of work run on the loop goroutine.
type Work func(ctx context.Context)

// workItem adds sequencing metadata for deterministic ordering.
type workItem struct {
	fn          Work
	sequenceNum uint64
	priority    int
}

// sortWork orders items by priority, then submission order.
func sortWork(items []workItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].priority != items[j].priority {
			return items[i].priority > items[j].priority
		}
		return items[i].sequenceNum < items[j].sequenceNum
	})
}
