package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/comalice/anchorflow/internal/observability"
)

type recorder struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recorder) OnEvent(_ context.Context, e observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// TestLoopDefaults tests zero config values fall back to defaults
func TestLoopDefaults(t *testing.T) {
	l := NewLoop(Config{})
	if l.tickRate != defaultTickRate {
		t.Errorf("tickRate = %v, want %v", l.tickRate, defaultTickRate)
	}
	if l.maxWork != defaultMaxWork {
		t.Errorf("maxWork = %d, want %d", l.maxWork, defaultMaxWork)
	}
}

// TestWorkOrdering tests priority first, then FIFO
func TestWorkOrdering(t *testing.T) {
	l := NewLoop(Config{})
	var got []string
	post := func(name string, priority int) {
		if err := l.PostWithPriority(func(context.Context) { got = append(got, name) }, priority); err != nil {
			t.Fatalf("post %s: %v", name, err)
		}
	}
	post("a", 0)
	post("b", 5)
	post("c", 0)
	post("d", 5)
	post("e", -1)

	l.Tick(time.Now())

	want := []string{"b", "d", "a", "c", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if l.TickNumber() != 1 {
		t.Errorf("TickNumber = %d, want 1", l.TickNumber())
	}
}

// TestWorkPostedDuringTickDeferred tests re-entrant posts land in the next tick
func TestWorkPostedDuringTickDeferred(t *testing.T) {
	l := NewLoop(Config{})
	var got []int
	_ = l.Post(func(context.Context) {
		got = append(got, 1)
		_ = l.Post(func(context.Context) { got = append(got, 2) })
	})

	l.Tick(time.Now())
	if len(got) != 1 {
		t.Fatalf("after first tick got %v", got)
	}
	if l.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", l.Pending())
	}
	l.Tick(time.Now())
	if len(got) != 2 || got[1] != 2 {
		t.Fatalf("after second tick got %v", got)
	}
}

// TestQueueFull tests the bounded queue
func TestQueueFull(t *testing.T) {
	l := NewLoop(Config{MaxEventsPerTick: 2})
	noop := func(context.Context) {}
	if err := l.Post(noop); err != nil {
		t.Fatal(err)
	}
	if err := l.Post(noop); err != nil {
		t.Fatal(err)
	}
	if err := l.Post(noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third post err = %v, want ErrQueueFull", err)
	}
	l.Tick(time.Now())
	if err := l.Post(noop); err != nil {
		t.Fatalf("post after drain: %v", err)
	}
}

// TestUpdatersRunAfterWork tests OnTick updaters see the tick time after work
func TestUpdatersRunAfterWork(t *testing.T) {
	l := NewLoop(Config{})
	var order []string
	var seen time.Time
	l.OnTick(func(_ context.Context, now time.Time) {
		order = append(order, "tick")
		seen = now
	})
	_ = l.Post(func(context.Context) { order = append(order, "work") })

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	l.Tick(now)

	if len(order) != 2 || order[0] != "work" || order[1] != "tick" {
		t.Fatalf("order = %v", order)
	}
	if !seen.Equal(now) {
		t.Errorf("updater saw %v, want %v", seen, now)
	}
}

// TestPanicRecovered tests panics are reported and later work still runs
func TestPanicRecovered(t *testing.T) {
	rec := &recorder{}
	l := NewLoop(Config{}, WithObserver(rec))
	ran := false
	_ = l.PostWithPriority(func(context.Context) { panic("boom") }, 1)
	_ = l.Post(func(context.Context) { ran = true })
	l.OnTick(func(context.Context, time.Time) { panic("frame") })

	l.Tick(time.Now())

	if !ran {
		t.Error("work after panic did not run")
	}
	if len(rec.events) != 2 {
		t.Fatalf("got %d events, want 2", len(rec.events))
	}
	first := rec.events[0]
	if first.Type != EventPanic || first.Data["panic"] != "boom" || first.Data["stage"] != "work" {
		t.Errorf("unexpected event %+v", first)
	}
	if rec.events[1].Data["stage"] != "tick" {
		t.Errorf("unexpected event %+v", rec.events[1])
	}
}

// TestStartStop tests the ticker goroutine drains posted work
func TestStartStop(t *testing.T) {
	l := NewLoop(Config{TickRate: time.Millisecond})
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v", err)
	}

	done := make(chan struct{})
	if err := l.Post(func(context.Context) { close(done) }); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("posted work never ran")
	}

	l.Stop()
	l.Stop()
	ticks := l.TickNumber()
	time.Sleep(10 * time.Millisecond)
	if l.TickNumber() != ticks {
		t.Error("loop kept ticking after Stop")
	}
}

// TestConcurrentPost tests Post from many goroutines
func TestConcurrentPost(t *testing.T) {
	l := NewLoop(Config{MaxEventsPerTick: 1000})
	var wg sync.WaitGroup
	count := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Post(func(context.Context) { count++ })
		}()
	}
	wg.Wait()
	l.Tick(time.Now())
	if count != 100 {
		t.Errorf("count = %d, want 100", count)
	}
}
