package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/comalice/anchorflow/internal/observability"
)

const (
	defaultTickRate = 16667 * time.Microsecond // 60 FPS
	defaultMaxWork  = 1000

	observerSource = "loop"
)

// EventPanic is emitted when a work item or updater panics.
const EventPanic observability.EventType = "loop.panic"

var (
	ErrQueueFull      = errors.New("work queue full")
	ErrAlreadyRunning = errors.New("loop already running")
)

// TickFunc is a per-frame updater.
type TickFunc func(ctx context.Context, now time.Time)

// Config configures the loop.
type Config struct {
	TickRate         time.Duration // Fixed tick rate (default 60 FPS)
	MaxEventsPerTick int           // Work queue capacity (default: 1000)
}

// Option configures a Loop.
type Option func(*Loop)

// WithObserver reports recovered panics to obs.
func WithObserver(obs observability.Observer) Option {
	return func(l *Loop) {
		if obs != nil {
			l.observer = obs
		}
	}
}

// Loop is the single control thread of a session.
type Loop struct {
	tickRate time.Duration
	maxWork  int
	observer observability.Observer

	mu          sync.Mutex
	batch       []workItem
	sequenceNum uint64
	tickNum     uint64
	updaters    []TickFunc

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewLoop creates a stopped loop. Zero Config fields take their defaults.
func NewLoop(cfg Config, opts ...Option) *Loop {
	if cfg.MaxEventsPerTick <= 0 {
		cfg.MaxEventsPerTick = defaultMaxWork
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	l := &Loop{
		tickRate: cfg.TickRate,
		maxWork:  cfg.MaxEventsPerTick,
		observer: observability.NoOpObserver{},
		batch:    make([]workItem, 0, cfg.MaxEventsPerTick),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start runs ticks on a new goroutine until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped != nil {
		return ErrAlreadyRunning
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.stopped = make(chan struct{})
	go l.run(l.ctx, l.stopped)
	return nil
}

// Stop halts the loop and waits for the running tick to finish. Work still
// queued is left for a later Tick or Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, stopped := l.cancel, l.stopped
	l.cancel, l.stopped = nil, nil
	l.ctx = context.Background()
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (l *Loop) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.processTick(ctx, now)
		}
	}
}

// Post queues work for the next tick. Safe for concurrent use.
func (l *Loop) Post(fn Work) error {
	return l.PostWithPriority(fn, 0)
}

// PostWithPriority queues work that runs before lower-priority work in the
// same tick.
func (l *Loop) PostWithPriority(fn Work, priority int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.batch) >= l.maxWork {
		return ErrQueueFull
	}
	l.batch = append(l.batch, workItem{
		fn:          fn,
		sequenceNum: l.sequenceNum,
		priority:    priority,
	})
	l.sequenceNum++
	return nil
}

// OnTick registers fn to run once per tick after queued work.
func (l *Loop) OnTick(fn TickFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updaters = append(l.updaters, fn)
}

// Tick runs one tick synchronously on the calling goroutine. It must not be
// used while the loop is started.
func (l *Loop) Tick(now time.Time) {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()
	l.processTick(ctx, now)
}

// TickNumber returns the number of completed ticks.
func (l *Loop) TickNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tickNum
}

// Pending returns the number of queued work items.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.batch)
}
