// Package main runs a scripted AR session against simulated engines: scan a
// new map, localize, place and save objects, then reload them from storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/comalice/anchorflow/internal/config"
	"github.com/comalice/anchorflow/internal/observability"
	"github.com/comalice/anchorflow/internal/production"
	"github.com/comalice/anchorflow/navigation"
	"github.com/comalice/anchorflow/realtime"
	"github.com/comalice/anchorflow/session"
	"github.com/comalice/anchorflow/spatial"
	"github.com/comalice/anchorflow/testutil"
)

func main() {
	var configPath string
	var printDOT bool
	flag.StringVar(&configPath, "config", "", "YAML config file (ANCHORFLOW_* env vars override it)")
	flag.BoolVar(&printDOT, "dot", true, "print the phase graph when done")
	flag.Parse()

	if err := run(configPath, printDOT); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, printDOT bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&spanLogger{logger: logger}))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("anchorflow/demo").Start(ctx, "demo-session")
	defer span.End()

	published := make(chan observability.Event, 256)
	channelObs := observability.NewChannelObserver(published, observability.LevelInfo)
	obs := observability.NewMultiObserver(
		observability.NewSlogObserver(logger),
		observability.TraceObserver{},
		channelObs,
	)

	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()
	marker := production.NewMapMarker(cfg.Storage.Dir, cfg.Storage.MapFile)

	snapshots := cfg.Storage.SnapshotsDir
	if snapshots == "" {
		snapshots = filepath.Join(cfg.Storage.Dir, "snapshots")
	}
	persister, err := production.NewYAMLPersister(snapshots)
	if err != nil {
		return err
	}

	loop := realtime.NewLoop(realtime.Config{
		TickRate:         cfg.Loop.TickRate,
		MaxEventsPerTick: cfg.Loop.MaxEventsPerTick,
	}, realtime.WithObserver(obs))

	rig := testutil.NewRig()
	rig.Tracker = testutil.NewFakeTracker(spatial.Pose{
		Position: spatial.Vec3{X: 0.5, Z: 2},
		Rotation: spatial.AxisAngle(spatial.Up, 0.3),
	})
	simulateEngines(loop, rig, marker, logger)

	deps := rig.Dependencies(store)
	deps.MapMarker = marker
	sess, err := session.New(session.Config{
		ScanBudget:        cfg.Session.ScanDuration,
		PlacementDistance: cfg.Session.PlacementDistance,
		ScanWatchdog:      cfg.Session.ScanWatchdog,
	}, deps,
		session.WithObserver(obs),
		session.WithPersister(persister),
	)
	if err != nil {
		return err
	}
	loop.OnTick(sess.Tick)

	viewer := spatial.Pose{Position: spatial.Vec3{Y: 1.6}, Rotation: spatial.Identity}
	guide := &navigation.Guide{
		Planner: demoFloorPlan(cfg.Navigation.SnapRadius),
		Viewer:  floorPosition(&viewer),
		Target:  firstObjectTarget(sess, rig.Tracker),
		Line:    &logLine{logger: logger},
	}
	loop.OnTick(guide.Update)

	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	d := &driver{loop: loop, sess: sess}
	if err := d.script(ctx, &viewer); err != nil {
		return err
	}

	loop.Stop()
	_ = channelObs.Close()
	count := 0
	for range published {
		count++
	}
	fmt.Printf("Session %s finished: %d events published, %d dropped\n", sess.ID(), count, channelObs.Dropped())
	if p := guide.LastPath(); p.Status != navigation.Invalid {
		fmt.Printf("Last guide path: %s, %.2fm over %d corners\n", p.Status, p.Length(), len(p.Corners))
	}
	if printDOT {
		fmt.Println("DOT:\n" + sess.Visualize())
	}
	return nil
}

func openStore(cfg config.StorageConfig) (session.ObjectStore, func(), error) {
	if cfg.Backend == config.BackendSQLite {
		st, err := production.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create storage dir: %w", err)
	}
	return production.NewFileStore(cfg.Dir, cfg.ObjectsFile), func() {}, nil
}

// simulateEngines makes the fakes answer asynchronously through the loop,
// the way real engines call back from their own threads.
func simulateEngines(loop *realtime.Loop, rig *testutil.Rig, marker *production.MapMarker, logger *slog.Logger) {
	later := func(d time.Duration, fn func()) {
		time.AfterFunc(d, func() {
			if err := loop.Post(func(context.Context) { fn() }); err != nil {
				logger.Error("post engine callback", "error", err)
			}
		})
	}
	rig.Mapper.OnStartScan = func(budget time.Duration) {
		later(budget/10, func() {
			if err := marker.Mark(); err != nil {
				logger.Error("mark map", "error", err)
			}
			rig.Mapper.Complete(true)
		})
	}
	rig.Tracker.OnStartTracking = func() {
		later(50*time.Millisecond, func() { rig.Tracker.Report(true) })
	}
}

// demoFloorPlan is a small corridor graph on the floor plane.
func demoFloorPlan(snap float64) *navigation.WaypointPlanner {
	p := navigation.NewWaypointPlanner(snap)
	p.Chain(
		spatial.Vec3{X: 0, Z: 0},
		spatial.Vec3{X: 0, Z: 2},
		spatial.Vec3{X: 2, Z: 3},
		spatial.Vec3{X: 4, Z: 3},
	)
	return p
}

// floorPosition projects viewer onto the floor. It must be read on the loop
// goroutine, where the driver moves the viewer.
func floorPosition(viewer *spatial.Pose) navigation.PositionSource {
	return func() (spatial.Vec3, bool) {
		return spatial.Vec3{X: viewer.Position.X, Z: viewer.Position.Z}, true
	}
}

// firstObjectTarget projects the first placed object onto the floor.
func firstObjectTarget(sess *session.Session, tracker session.TrackingSession) navigation.PositionSource {
	return func() (spatial.Vec3, bool) {
		objs := sess.Objects()
		anchor, ok := tracker.Anchor()
		if len(objs) == 0 || !ok {
			return spatial.Vec3{}, false
		}
		world := anchor.TransformPoint(objs[0].Local)
		return spatial.Vec3{X: world.X, Z: world.Z}, true
	}
}

type logLine struct {
	logger *slog.Logger
}

func (l *logLine) SetPositions(positions []spatial.Vec3) {
	l.logger.Debug("guide line", "corners", len(positions))
}

// spanLogger logs finished spans with their event count.
type spanLogger struct {
	logger *slog.Logger
}

func (s *spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (s *spanLogger) OnEnd(span sdktrace.ReadOnlySpan) {
	s.logger.Info("span ended",
		"name", span.Name(),
		"events", len(span.Events()),
		"status", span.Status().Code.String(),
		"duration", span.EndTime().Sub(span.StartTime()).String(),
	)
}

func (s *spanLogger) Shutdown(context.Context) error   { return nil }
func (s *spanLogger) ForceFlush(context.Context) error { return nil }
