package observability

import (
	"context"
	"sync/atomic"
)

// ChannelObserver forwards events to a Go channel.
// Non-blocking: events are dropped when the channel is full.
type ChannelObserver struct {
	ch      chan<- Event
	minimum Level
	dropped atomic.Int64
}

// NewChannelObserver creates a ChannelObserver forwarding events at or above
// minimum to ch.
func NewChannelObserver(ch chan<- Event, minimum Level) *ChannelObserver {
	return &ChannelObserver{ch: ch, minimum: minimum}
}

func (o *ChannelObserver) OnEvent(ctx context.Context, event Event) {
	if event.Level < o.minimum {
		return
	}
	select {
	case o.ch <- event:
	case <-ctx.Done():
		o.dropped.Add(1)
	default:
		o.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded on backpressure.
func (o *ChannelObserver) Dropped() int64 {
	return o.dropped.Load()
}

// Close closes the output channel.
func (o *ChannelObserver) Close() error {
	close(o.ch)
	return nil
}
