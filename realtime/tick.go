package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/comalice/anchorflow/internal/observability"
)

// processTick runs one complete tick.
func (l *Loop) processTick(ctx context.Context, now time.Time) {
	// Phase 1: collect work atomically
	items := l.collectWork()

	// Phase 2: sort for deterministic order
	sortWork(items)

	// Phase 3: run work
	for _, item := range items {
		l.guard(ctx, "work", func() { item.fn(ctx) })
	}

	// Phase 4: per-frame updaters
	for _, fn := range l.updatersSnapshot() {
		l.guard(ctx, "tick", func() { fn(ctx, now) })
	}

	l.mu.Lock()
	l.tickNum++
	l.mu.Unlock()
}

// collectWork atomically retrieves and clears the batch.
func (l *Loop) collectWork() []workItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := l.batch
	l.batch = make([]workItem, 0, l.maxWork)
	return items
}

func (l *Loop) updatersSnapshot() []TickFunc {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TickFunc(nil), l.updaters...)
}

// guard runs fn, reporting a panic instead of propagating it.
func (l *Loop) guard(ctx context.Context, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			observability.Emit(ctx, l.observer, observerSource, EventPanic, observability.LevelError, map[string]any{
				"stage": stage,
				"panic": fmt.Sprint(r),
				"tick":  l.TickNumber(),
			})
		}
	}()
	fn()
}
