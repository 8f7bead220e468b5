// Package testutil provides in-memory collaborators for driving a session
// without AR engines, a renderer or a disk.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/anchorflow/session"
	"github.com/comalice/anchorflow/spatial"
)

// listeners is a set of bool callbacks with cancel handles.
type listeners struct {
	mu     sync.Mutex
	next   int
	fns    map[int]func(bool)
	leaky  bool
	cancel int
}

func (l *listeners) add(fn func(bool)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = map[int]func(bool){}
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.cancel++
			if !l.leaky {
				delete(l.fns, id)
			}
		})
	}
}

func (l *listeners) fire(v bool) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(bool), len(ids))
	for i, id := range ids {
		fns[i] = l.fns[id]
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (l *listeners) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

func (l *listeners) cancels() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel
}

// FakeMapper is a scripted MappingSession. Completion is reported only when
// the test calls Complete, or from OnStartScan.
type FakeMapper struct {
	mu        sync.Mutex
	listeners listeners
	scans     []time.Duration
	stops     int
	clears    int

	// OnStartScan, when set, runs after each StartScan.
	OnStartScan func(budget time.Duration)
}

func NewFakeMapper() *FakeMapper { return &FakeMapper{} }

// Leaky makes cancel functions keep the listener registered, simulating an
// engine that delivers after unsubscribe.
func (m *FakeMapper) Leaky() *FakeMapper {
	m.listeners.leaky = true
	return m
}

func (m *FakeMapper) Subscribe(fn func(success bool)) func() { return m.listeners.add(fn) }

func (m *FakeMapper) StartScan(budget time.Duration) {
	m.mu.Lock()
	m.scans = append(m.scans, budget)
	hook := m.OnStartScan
	m.mu.Unlock()
	if hook != nil {
		hook(budget)
	}
}

func (m *FakeMapper) StopMapping() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *FakeMapper) ClearAllState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
}

// Complete reports a scan result to every registered listener.
func (m *FakeMapper) Complete(success bool) { m.listeners.fire(success) }

func (m *FakeMapper) Listeners() int { return m.listeners.count() }
func (m *FakeMapper) Cancels() int   { return m.listeners.cancels() }

func (m *FakeMapper) Scans() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.scans...)
}

func (m *FakeMapper) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *FakeMapper) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// FakeTracker is a scripted TrackingSession whose anchor sits at AnchorPose.
type FakeTracker struct {
	mu        sync.Mutex
	listeners listeners
	anchor    spatial.Pose
	localized bool
	starts    int
	clears    int

	// OnStartTracking, when set, runs after each StartTracking.
	OnStartTracking func()
}

func NewFakeTracker(anchor spatial.Pose) *FakeTracker {
	return &FakeTracker{anchor: anchor}
}

func (t *FakeTracker) Leaky() *FakeTracker {
	t.listeners.leaky = true
	return t
}

func (t *FakeTracker) Subscribe(fn func(localized bool)) func() { return t.listeners.add(fn) }

func (t *FakeTracker) StartTracking() {
	t.mu.Lock()
	t.starts++
	hook := t.OnStartTracking
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (t *FakeTracker) Anchor() (spatial.Pose, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anchor, t.localized
}

func (t *FakeTracker) WorldToAnchorLocal(world spatial.Vec3) spatial.Vec3 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anchor.InverseTransformPoint(world)
}

func (t *FakeTracker) ClearAllState() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localized = false
	t.clears++
}

// Report records the localization status and delivers it to listeners.
func (t *FakeTracker) Report(localized bool) {
	t.mu.Lock()
	t.localized = localized
	t.mu.Unlock()
	t.listeners.fire(localized)
}

func (t *FakeTracker) Listeners() int { return t.listeners.count() }
func (t *FakeTracker) Cancels() int   { return t.listeners.cancels() }

func (t *FakeTracker) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}

func (t *FakeTracker) Clears() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clears
}

// FakeUI records what the session shows.
type FakeUI struct {
	mu           sync.Mutex
	visible      map[session.Phase]bool
	interactable map[session.Control]bool
	status       string
	busy         bool
	statuses     []string
}

func NewFakeUI() *FakeUI {
	return &FakeUI{
		visible:      map[session.Phase]bool{},
		interactable: map[session.Control]bool{},
	}
}

func (u *FakeUI) Show(p session.Phase) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.visible[p] = true
}

func (u *FakeUI) Hide(p session.Phase) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.visible, p)
}

func (u *FakeUI) SetInteractable(c session.Control, on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.interactable[c] = on
}

func (u *FakeUI) SetStatus(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = msg
	u.statuses = append(u.statuses, msg)
}

func (u *FakeUI) SetBusy(busy bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.busy = busy
}

// Visible lists the shown phases.
func (u *FakeUI) Visible() []session.Phase {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []session.Phase
	for _, p := range session.Phases {
		if u.visible[p] {
			out = append(out, p)
		}
	}
	return out
}

func (u *FakeUI) Interactable(c session.Control) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.interactable[c]
}

func (u *FakeUI) Status() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

func (u *FakeUI) Statuses() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.statuses...)
}

func (u *FakeUI) Busy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.busy
}

// FakeScene tracks live objects. SpawnErr fails every Spawn.
type FakeScene struct {
	mu        sync.Mutex
	live      map[uuid.UUID]session.PlacedObject
	spawned   int
	destroyed int
	SpawnErr  error
}

func NewFakeScene() *FakeScene {
	return &FakeScene{live: map[uuid.UUID]session.PlacedObject{}}
}

func (s *FakeScene) Spawn(obj session.PlacedObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SpawnErr != nil {
		return s.SpawnErr
	}
	s.live[obj.ID] = obj
	s.spawned++
	return nil
}

func (s *FakeScene) Destroy(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; ok {
		delete(s.live, id)
		s.destroyed++
	}
}

func (s *FakeScene) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *FakeScene) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned
}

func (s *FakeScene) Destroyed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// ErrInjected is the default failure of FakeStore.
var ErrInjected = errors.New("injected failure")

// FakeStore is an in-memory ObjectStore with injectable failures.
type FakeStore struct {
	mu        sync.Mutex
	positions []spatial.Vec3
	present   bool
	saves     int
	loads     int
	deletes   int

	SaveErr   error
	LoadErr   error
	DeleteErr error
}

func NewFakeStore(positions ...spatial.Vec3) *FakeStore {
	return &FakeStore{positions: positions, present: len(positions) > 0}
}

func (s *FakeStore) Exists(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

func (s *FakeStore) Save(_ context.Context, positions []spatial.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.positions = append([]spatial.Vec3(nil), positions...)
	s.present = true
	return nil
}

func (s *FakeStore) Load(context.Context) ([]spatial.Vec3, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return append([]spatial.Vec3{}, s.positions...), nil
}

func (s *FakeStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.positions = nil
	s.present = false
	return nil
}

func (s *FakeStore) Counts() (saves, loads, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.loads, s.deletes
}

// FakeMapMarker reports Present.
type FakeMapMarker struct {
	Present bool
}

func (m *FakeMapMarker) Exists() bool { return m.Present }

// Rig bundles one of each fake and the session Dependencies over them.
type Rig struct {
	Mapper  *FakeMapper
	Tracker *FakeTracker
	UI      *FakeUI
	Scene   *FakeScene
	Marker  *FakeMapMarker
}

// NewRig builds fakes with an identity anchor pose and no saved map.
func NewRig() *Rig {
	return &Rig{
		Mapper:  NewFakeMapper(),
		Tracker: NewFakeTracker(spatial.Pose{Rotation: spatial.Identity}),
		UI:      NewFakeUI(),
		Scene:   NewFakeScene(),
		Marker:  &FakeMapMarker{},
	}
}

// Dependencies wires the rig and store into session dependencies.
func (r *Rig) Dependencies(store session.ObjectStore) session.Dependencies {
	return session.Dependencies{
		Mapper:    r.Mapper,
		Tracker:   r.Tracker,
		UI:        r.UI,
		Scene:     r.Scene,
		Store:     store,
		MapMarker: r.Marker,
	}
}

// Compile-time interface checks.
var (
	_ session.MappingSession  = (*FakeMapper)(nil)
	_ session.TrackingSession = (*FakeTracker)(nil)
	_ session.UI              = (*FakeUI)(nil)
	_ session.Scene           = (*FakeScene)(nil)
	_ session.ObjectStore     = (*FakeStore)(nil)
	_ session.MapMarker       = (*FakeMapMarker)(nil)
)
