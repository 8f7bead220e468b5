package main

import (
	"context"
	"fmt"
	"time"

	"github.com/comalice/anchorflow/realtime"
	"github.com/comalice/anchorflow/session"
	"github.com/comalice/anchorflow/spatial"
)

// driver runs session operations on the loop goroutine and waits for them.
type driver struct {
	loop *realtime.Loop
	sess *session.Session
}

func (d *driver) do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := d.loop.PostWithPriority(func(ctx context.Context) { done <- fn(ctx) }, 1); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *driver) waitFor(ctx context.Context, want session.Phase, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var got session.Phase
		if err := d.do(ctx, func(context.Context) error {
			got = d.sess.Phase()
			return nil
		}); err != nil {
			return err
		}
		if got == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s, still %s", want, got)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// script walks scan, localize, place, save, exit, load and restore.
func (d *driver) script(ctx context.Context, viewer *spatial.Pose) error {
	const wait = 10 * time.Second
	s := d.sess

	if err := d.do(ctx, s.Start); err != nil {
		return err
	}

	if err := d.do(ctx, s.RequestCreateOrScan); err != nil {
		return err
	}
	if err := d.waitFor(ctx, session.InSession, wait); err != nil {
		return err
	}
	fmt.Println("Localized against new map")

	for i := range 3 {
		// The guide reads viewer on the loop goroutine.
		if err := d.do(ctx, func(ctx context.Context) error {
			viewer.Position.X = float64(i) * 0.5
			viewer.Rotation = spatial.AxisAngle(spatial.Up, float64(i)*0.4)
			obj, err := s.PlaceObject(ctx, *viewer)
			if err == nil {
				fmt.Printf("Placed %s at %v\n", obj.ID, obj.Local)
			}
			return err
		}); err != nil {
			return err
		}
	}
	if err := d.do(ctx, s.SaveObjects); err != nil {
		return err
	}
	if err := d.do(ctx, s.ExitSession); err != nil {
		return err
	}
	fmt.Println("Exited to", session.Idle)

	if err := d.do(ctx, s.RequestLoad); err != nil {
		return err
	}
	if err := d.waitFor(ctx, session.InSession, wait); err != nil {
		return err
	}
	var restored []session.PlacedObject
	if err := d.do(ctx, func(context.Context) error {
		restored = s.Objects()
		return s.LoadError()
	}); err != nil {
		return err
	}
	for _, obj := range restored {
		fmt.Printf("Restored %s at %v\n", obj.ID, obj.Local)
	}

	// Let the guide run a few frames toward the first object.
	time.Sleep(100 * time.Millisecond)
	return d.do(ctx, s.ExitSession)
}
