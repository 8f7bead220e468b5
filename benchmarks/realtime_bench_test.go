package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/comalice/anchorflow/realtime"
)

func BenchmarkLoopPost(b *testing.B) {
	l := realtime.NewLoop(realtime.Config{MaxEventsPerTick: 1024})
	noop := func(context.Context) {}
	now := time.Now()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := l.Post(noop); err != nil {
			l.Tick(now)
			if err := l.Post(noop); err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkLoopTick(b *testing.B) {
	for _, n := range []int{1, 100, 1000} {
		b.Run(fmt.Sprintf("work=%d", n), func(b *testing.B) {
			l := realtime.NewLoop(realtime.Config{MaxEventsPerTick: n})
			var ran int
			work := func(context.Context) { ran++ }
			l.OnTick(func(context.Context, time.Time) {})
			now := time.Now()
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				for j := 0; j < n; j++ {
					_ = l.PostWithPriority(work, j%3)
				}
				l.Tick(now)
			}
			b.StopTimer()
			if ran != n*b.N {
				b.Fatalf("ran %d work items, want %d", ran, n*b.N)
			}
		})
	}
}
