package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/anchorflow"
	"github.com/comalice/anchorflow/internal/observability"
	"github.com/comalice/anchorflow/internal/production"
	"github.com/comalice/anchorflow/spatial"
)

const observerSource = "session"

// Event types emitted to the observer.
const (
	EventStart          observability.EventType = "session.start"
	EventTransition     observability.EventType = "session.transition"
	EventSubscribe      observability.EventType = "session.subscription.acquire"
	EventUnsubscribe    observability.EventType = "session.subscription.release"
	EventStaleCallback  observability.EventType = "session.callback.stale"
	EventScanStart      observability.EventType = "session.scan.start"
	EventScanFailed     observability.EventType = "session.scan.failed"
	EventScanWatchdog   observability.EventType = "session.scan.watchdog"
	EventLocalizeFailed observability.EventType = "session.localize.failed"
	EventObjectPlaced   observability.EventType = "session.object.place"
	EventObjectsRestore observability.EventType = "session.objects.restore"
	EventObjectsSaved   observability.EventType = "session.objects.save"
	EventObjectsDeleted observability.EventType = "session.objects.delete"
	EventStorageError   observability.EventType = "session.storage.error"
	EventSnapshotError  observability.EventType = "session.snapshot.error"
	EventCallbackError  observability.EventType = "session.callback.error"
)

// ErrNoAnchor is returned by PlaceObject when tracking exposes no anchor.
var ErrNoAnchor = fmt.Errorf("%w: tracking has no anchor", ErrPrecondition)

// PlacedObject is a live object positioned in anchor-local coordinates.
type PlacedObject struct {
	ID    uuid.UUID
	Local spatial.Vec3
}

// Session is the AR session workflow state machine.
type Session struct {
	id        string
	cfg       Config
	deps      Dependencies
	observer  observability.Observer
	persister Persister
	now       func() time.Time

	machine    *anchorflow.Machine
	events     map[string]anchorflow.EventID
	scanningID anchorflow.StateID
	subs       *registry
	// ctx is the Start context, used for engine callbacks that carry none.
	ctx context.Context

	objects      []PlacedObject
	loadErr      error
	scanInFlight bool
	scanStarted  time.Time
}

// New builds a session in the not-started state. Zero Config fields take
// their defaults.
func New(cfg Config, deps Dependencies, opts ...Option) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		deps:     deps,
		observer: observability.NoOpObserver{},
		now:      time.Now,
		events:   map[string]anchorflow.EventID{},
		subs:     newRegistry(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subs.onAcquire = func(k SubscriptionKey) {
		s.emit(s.ctx, EventSubscribe, observability.LevelVerbose, map[string]any{"source": string(k.Source), "phase": string(k.Phase)})
	}
	s.subs.onRelease = func(k SubscriptionKey) {
		s.emit(s.ctx, EventUnsubscribe, observability.LevelVerbose, map[string]any{"source": string(k.Source), "phase": string(k.Phase)})
	}

	if s.machine, err = s.buildMachine(); err != nil {
		return nil, fmt.Errorf("session: build phases: %w", err)
	}
	return s, nil
}

func (s *Session) buildMachine() (*anchorflow.Machine, error) {
	b := anchorflow.NewMachineBuilder(string(Idle))

	b.State(string(Idle)).
		Entry(s.enterIdle).
		Exit(s.exitIdle).
		On(evCreate, string(Scanning), nil, nil).
		On(evLoad, string(Localizing), nil, nil).
		On(evExit, string(Idle), nil, s.reset)

	b.State(string(Scanning)).
		Entry(s.enterScanning).
		Exit(s.exitScanning).
		On(evMappingComplete, string(Localizing), payloadIs(true), s.mappingSucceeded).
		OnInternal(evMappingComplete, payloadIs(false), s.mappingFailed).
		On(evExit, string(Idle), nil, s.reset)

	b.State(string(Localizing)).
		Entry(s.enterLocalizing).
		Exit(s.exitLocalizing).
		On(evTrackingStatus, string(InSession), payloadIs(true), nil).
		On(evTrackingStatus, string(Idle), payloadIs(false), s.trackingFailed).
		On(evExit, string(Idle), nil, s.reset)

	b.State(string(InSession)).
		Entry(s.enterInSession).
		Exit(s.exitInSession).
		On(evExit, string(Idle), nil, s.reset)

	for _, name := range []string{evCreate, evLoad, evMappingComplete, evTrackingStatus, evExit} {
		s.events[name] = b.EventID(name)
	}

	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	s.scanningID = b.GetID(string(Scanning))
	m.SetTeardownAll(true)
	m.OnTransition(s.afterTransition)
	return m, nil
}

func payloadIs(want bool) anchorflow.Guard {
	return func(_ context.Context, evt *anchorflow.Event, _, _ anchorflow.StateID) (bool, error) {
		v, ok := evt.Payload.(bool)
		if !ok {
			return false, fmt.Errorf("payload %T is not a bool", evt.Payload)
		}
		return v == want, nil
	}
}

//
// Public API
//

// ID returns the session identifier used for snapshots and events.
func (s *Session) ID() string { return s.id }

// Start enters Idle. Calling it again is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if s.machine.Current() != nil {
		return nil
	}
	s.ctx = ctx
	if err := s.machine.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	s.emit(ctx, EventStart, observability.LevelInfo, map[string]any{"phase": string(s.Phase())})
	s.persist(ctx, "", "")
	return nil
}

// Phase returns the active phase, or "" before Start.
func (s *Session) Phase() Phase {
	cur := s.machine.Current()
	if cur == nil {
		return ""
	}
	return Phase(cur.Name)
}

// RequestCreateOrScan starts a bounded scan for a new map.
func (s *Session) RequestCreateOrScan(ctx context.Context) error {
	if err := s.require("RequestCreateOrScan", Idle); err != nil {
		return err
	}
	return s.send(ctx, evCreate, nil)
}

// RequestLoad starts localizing against the saved map.
func (s *Session) RequestLoad(ctx context.Context) error {
	if err := s.require("RequestLoad", Idle); err != nil {
		return err
	}
	if !s.deps.MapMarker.Exists() {
		return ErrNoMap
	}
	return s.send(ctx, evLoad, nil)
}

// RetryScan starts a new scan attempt after a failed one.
func (s *Session) RetryScan(ctx context.Context) error {
	if err := s.require("RetryScan", Scanning); err != nil {
		return err
	}
	if s.scanInFlight {
		return ErrScanInFlight
	}
	return s.beginScan(ctx)
}

// OnMappingComplete handles the mapping engine's completion report. Reports
// with no active mapping subscription are ignored.
func (s *Session) OnMappingComplete(ctx context.Context, success bool) error {
	sub := s.subs.get(SubscriptionKey{Source: SourceMapping, Phase: Scanning})
	if sub == nil {
		s.stale(ctx, SourceMapping, success)
		return nil
	}
	sub.Release()
	s.scanInFlight = false
	return s.send(ctx, evMappingComplete, success)
}

// OnTrackingStatus handles a localization status report. The first report
// after subscribing decides the outcome; later ones are ignored.
func (s *Session) OnTrackingStatus(ctx context.Context, localized bool) error {
	sub := s.subs.get(SubscriptionKey{Source: SourceTracking, Phase: Localizing})
	if sub == nil {
		s.stale(ctx, SourceTracking, localized)
		return nil
	}
	sub.Release()
	return s.send(ctx, evTrackingStatus, localized)
}

// PlaceObject spawns an object PlacementDistance ahead of the viewer. The
// object is live only; SaveObjects persists it.
func (s *Session) PlaceObject(ctx context.Context, viewer spatial.Pose) (PlacedObject, error) {
	if err := s.require("PlaceObject", InSession); err != nil {
		return PlacedObject{}, err
	}
	if _, ok := s.deps.Tracker.Anchor(); !ok {
		return PlacedObject{}, ErrNoAnchor
	}

	world := viewer.PointAhead(s.cfg.PlacementDistance)
	obj := PlacedObject{
		ID:    uuid.New(),
		Local: s.deps.Tracker.WorldToAnchorLocal(world),
	}
	if err := s.deps.Scene.Spawn(obj); err != nil {
		return PlacedObject{}, fmt.Errorf("place object: %w", err)
	}
	s.objects = append(s.objects, obj)
	s.emit(ctx, EventObjectPlaced, observability.LevelInfo, map[string]any{
		"id":    obj.ID.String(),
		"local": obj.Local.String(),
		"count": len(s.objects),
	})
	return obj, nil
}

// SaveObjects overwrites storage with the live objects. On failure the
// phase and the live objects are kept.
func (s *Session) SaveObjects(ctx context.Context) error {
	if err := s.require("SaveObjects", InSession); err != nil {
		return err
	}
	positions := s.positions()
	if err := s.deps.Store.Save(ctx, positions); err != nil {
		s.storageFailure(ctx, "save", err)
		return fmt.Errorf("save objects: %w", err)
	}
	s.deps.UI.SetStatus(fmt.Sprintf("Saved %d objects", len(positions)))
	s.emit(ctx, EventObjectsSaved, observability.LevelInfo, map[string]any{"count": len(positions)})
	return nil
}

// DeleteObjects destroys the live objects and removes the stored record.
func (s *Session) DeleteObjects(ctx context.Context) error {
	if err := s.require("DeleteObjects", InSession); err != nil {
		return err
	}
	n := s.destroyObjects()
	if err := s.deps.Store.Delete(ctx); err != nil {
		s.storageFailure(ctx, "delete", err)
		return fmt.Errorf("delete objects: %w", err)
	}
	s.deps.UI.SetStatus("Deleted objects")
	s.emit(ctx, EventObjectsDeleted, observability.LevelInfo, map[string]any{"destroyed": n})
	return nil
}

// ExitSession tears down every phase and returns to Idle.
func (s *Session) ExitSession(ctx context.Context) error {
	if s.machine.Current() == nil {
		return &PhaseError{Op: "ExitSession", Allowed: Phases}
	}
	return s.send(ctx, evExit, nil)
}

// Tick runs the scan watchdog. It is registered with the control loop.
func (s *Session) Tick(ctx context.Context, now time.Time) {
	if s.cfg.ScanWatchdog <= 0 || !s.scanInFlight || s.Phase() != Scanning {
		return
	}
	elapsed := now.Sub(s.scanStarted)
	if elapsed < s.cfg.ScanWatchdog {
		return
	}
	s.emit(ctx, EventScanWatchdog, observability.LevelWarning, map[string]any{
		"elapsed":  elapsed.String(),
		"watchdog": s.cfg.ScanWatchdog.String(),
	})
	s.deps.Mapper.StopMapping()
	if err := s.OnMappingComplete(ctx, false); err != nil {
		s.callbackError(ctx, SourceMapping, err)
	}
}

// Objects returns a copy of the live placed objects.
func (s *Session) Objects() []PlacedObject {
	out := make([]PlacedObject, len(s.objects))
	copy(out, s.objects)
	return out
}

// LoadError returns the restore failure of the most recent InSession
// entry, or nil.
func (s *Session) LoadError() error { return s.loadErr }

// ActiveSubscriptions lists the live engine subscriptions.
func (s *Session) ActiveSubscriptions() []SubscriptionKey { return s.subs.keys() }

// Visualize renders the phase machine as Graphviz DOT.
func (s *Session) Visualize() string {
	return (&production.DefaultVisualizer{}).ExportDOT(s.machine)
}

//
// Phase actions
//

func (s *Session) enterIdle(_ context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	ui := s.deps.UI
	ui.Show(Idle)
	ui.SetBusy(false)
	ui.SetInteractable(ControlCreate, true)
	ui.SetInteractable(ControlLoad, s.deps.MapMarker.Exists())
	return nil
}

func (s *Session) exitIdle(_ context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	ui := s.deps.UI
	ui.SetInteractable(ControlCreate, false)
	ui.SetInteractable(ControlLoad, false)
	ui.Hide(Idle)
	return nil
}

func (s *Session) enterScanning(ctx context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.deps.UI.Show(Scanning)
	return s.beginScan(ctx)
}

func (s *Session) beginScan(ctx context.Context) error {
	_, err := s.subs.acquire(SubscriptionKey{Source: SourceMapping, Phase: Scanning}, func(sub *Subscription) func() {
		return s.deps.Mapper.Subscribe(func(success bool) {
			s.deliver(sub, SourceMapping, success, s.OnMappingComplete)
		})
	})
	if err != nil {
		return err
	}
	s.scanInFlight = true
	s.scanStarted = s.now()

	ui := s.deps.UI
	ui.SetInteractable(ControlRetry, false)
	ui.SetBusy(true)
	ui.SetStatus("Scanning environment")
	s.emit(ctx, EventScanStart, observability.LevelInfo, map[string]any{"budget": s.cfg.ScanBudget.String()})
	s.deps.Mapper.StartScan(s.cfg.ScanBudget)
	return nil
}

// exitScanning runs on every teardown; the mapper is stopped only when
// Scanning is the phase being left.
func (s *Session) exitScanning(_ context.Context, _ *anchorflow.Event, from, _ anchorflow.StateID) error {
	s.subs.releasePhase(Scanning)
	s.scanInFlight = false
	if from == s.scanningID {
		s.deps.Mapper.StopMapping()
	}
	ui := s.deps.UI
	ui.SetInteractable(ControlRetry, false)
	ui.SetBusy(false)
	ui.Hide(Scanning)
	return nil
}

func (s *Session) mappingFailed(ctx context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	ui := s.deps.UI
	ui.SetBusy(false)
	ui.SetInteractable(ControlRetry, true)
	ui.SetStatus("Scan failed, scan again to retry")
	s.emit(ctx, EventScanFailed, observability.LevelWarning, nil)
	return nil
}

// mappingSucceeded drops objects placed against any previous map.
func (s *Session) mappingSucceeded(ctx context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.destroyObjects()
	if err := s.deps.Store.Delete(ctx); err != nil {
		s.storageFailure(ctx, "delete", err)
	}
	return nil
}

func (s *Session) enterLocalizing(ctx context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.deps.UI.Show(Localizing)
	_, err := s.subs.acquire(SubscriptionKey{Source: SourceTracking, Phase: Localizing}, func(sub *Subscription) func() {
		return s.deps.Tracker.Subscribe(func(localized bool) {
			s.deliver(sub, SourceTracking, localized, s.OnTrackingStatus)
		})
	})
	if err != nil {
		return err
	}
	s.deps.UI.SetStatus("Localizing")
	s.deps.Tracker.StartTracking()
	return nil
}

func (s *Session) exitLocalizing(_ context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.subs.releasePhase(Localizing)
	s.deps.UI.Hide(Localizing)
	return nil
}

func (s *Session) trackingFailed(ctx context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.resetEngines()
	s.deps.UI.SetStatus("Localization failed, create or load a map")
	s.emit(ctx, EventLocalizeFailed, observability.LevelWarning, nil)
	return nil
}

func (s *Session) enterInSession(ctx context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.loadErr = nil
	ui := s.deps.UI
	ui.Show(InSession)
	for _, c := range []Control{ControlPlace, ControlSave, ControlDelete} {
		ui.SetInteractable(c, true)
	}

	positions, err := s.deps.Store.Load(ctx)
	if err != nil {
		s.loadErr = fmt.Errorf("restore objects: %w", err)
		s.storageFailure(ctx, "load", err)
		return nil
	}

	var spawnErrs []error
	for _, p := range positions {
		obj := PlacedObject{ID: uuid.New(), Local: p}
		if err := s.deps.Scene.Spawn(obj); err != nil {
			spawnErrs = append(spawnErrs, err)
			continue
		}
		s.objects = append(s.objects, obj)
	}
	if err := errors.Join(spawnErrs...); err != nil {
		s.loadErr = fmt.Errorf("restore objects: %w", err)
		s.storageFailure(ctx, "restore", err)
	} else {
		ui.SetStatus(fmt.Sprintf("Restored %d objects", len(s.objects)))
	}

	data := map[string]any{"restored": len(s.objects), "stored": len(positions)}
	if anchor, ok := s.deps.Tracker.Anchor(); ok {
		data["anchor"] = anchor.Position.String()
	}
	s.emit(ctx, EventObjectsRestore, observability.LevelInfo, data)
	return nil
}

func (s *Session) exitInSession(_ context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.destroyObjects()
	ui := s.deps.UI
	for _, c := range []Control{ControlPlace, ControlSave, ControlDelete} {
		ui.SetInteractable(c, false)
	}
	ui.Hide(InSession)
	return nil
}

// reset runs on ExitSession from any phase.
func (s *Session) reset(_ context.Context, _ *anchorflow.Event, _, _ anchorflow.StateID) error {
	s.deps.UI.SetStatus("")
	s.resetEngines()
	return nil
}

func (s *Session) resetEngines() {
	s.deps.Mapper.ClearAllState()
	s.deps.Tracker.ClearAllState()
}

func (s *Session) afterTransition(ctx context.Context, evt *anchorflow.Event, from, to *anchorflow.State) {
	event := s.machine.EventName(evt.ID)
	s.emit(ctx, EventTransition, observability.LevelInfo, map[string]any{
		"from":  from.Name,
		"to":    to.Name,
		"event": event,
	})
	s.persist(ctx, from.Name, event)
}

//
// Helpers
//

func (s *Session) send(ctx context.Context, event string, payload any) error {
	err := s.machine.Send(ctx, anchorflow.Event{ID: s.events[event], Payload: payload})
	if err != nil {
		return fmt.Errorf("session %s: %w", event, err)
	}
	return nil
}

func (s *Session) require(op string, allowed ...Phase) error {
	cur := s.Phase()
	for _, p := range allowed {
		if p == cur {
			return nil
		}
	}
	return &PhaseError{Op: op, Phase: cur, Allowed: allowed}
}

// deliver forwards an engine callback if sub is still the live handle.
func (s *Session) deliver(sub *Subscription, src Source, v bool, handle func(context.Context, bool) error) {
	if !sub.Active() {
		s.stale(s.ctx, src, v)
		return
	}
	if err := handle(s.ctx, v); err != nil {
		s.callbackError(s.ctx, src, err)
	}
}

func (s *Session) stale(ctx context.Context, src Source, v bool) {
	s.emit(ctx, EventStaleCallback, observability.LevelVerbose, map[string]any{
		"source": string(src),
		"value":  v,
		"phase":  string(s.Phase()),
	})
}

func (s *Session) callbackError(ctx context.Context, src Source, err error) {
	s.emit(ctx, EventCallbackError, observability.LevelError, map[string]any{
		"source": string(src),
		"error":  err.Error(),
	})
}

func (s *Session) storageFailure(ctx context.Context, op string, err error) {
	s.deps.UI.SetStatus(fmt.Sprintf("Could not %s objects: %v", op, err))
	s.emit(ctx, EventStorageError, observability.LevelError, map[string]any{
		"op":    op,
		"error": err.Error(),
	})
}

func (s *Session) destroyObjects() int {
	n := len(s.objects)
	for _, obj := range s.objects {
		s.deps.Scene.Destroy(obj.ID)
	}
	s.objects = nil
	return n
}

func (s *Session) positions() []spatial.Vec3 {
	out := make([]spatial.Vec3, len(s.objects))
	for i, obj := range s.objects {
		out[i] = obj.Local
	}
	return out
}

func (s *Session) persist(ctx context.Context, from, event string) {
	if s.persister == nil {
		return
	}
	snap := production.Snapshot{
		SessionID: s.id,
		Phase:     string(s.Phase()),
		From:      from,
		Event:     event,
		Objects:   s.positions(),
		Timestamp: s.now(),
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		s.emit(ctx, EventSnapshotError, observability.LevelWarning, map[string]any{"error": err.Error()})
	}
}

func (s *Session) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["session"] = s.id
	observability.Emit(ctx, s.observer, observerSource, typ, level, data)
}
