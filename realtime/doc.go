// Package realtime provides the single control loop that drives a session.
//
// AR engines report from their own goroutines, but the session state machine
// is single-threaded. A Loop owns that thread: callers Post work from any
// goroutine and the loop runs it at fixed tick boundaries, followed by the
// per-frame updaters registered with OnTick (scan watchdog, path guide).
//
// # Example Usage
//
//	loop := realtime.NewLoop(realtime.Config{TickRate: 16667 * time.Microsecond})
//	loop.OnTick(sess.Tick)
//	loop.Start(ctx)
//	defer loop.Stop()
//
//	mapper.Subscribe(func(ok bool) {
//		loop.Post(func(ctx context.Context) { sess.OnMappingComplete(ctx, ok) })
//	})
//
// # Work Ordering Guarantees
//
// Work posted before a tick starts is run in that tick, ordered by:
//  1. Priority (higher priority first)
//  2. Sequence number (FIFO for same priority)
//
// Work posted while a tick is running is deferred to the next tick. Given the
// same sequence of Post calls the loop always runs work in the same order,
// regardless of timing.
//
// A panic in a work item or updater is recovered and reported to the
// observer; the loop keeps running.
package realtime
