// Package session drives an anchored AR session through its workflow:
// create or load a map, scan, localize against the map, then place, save and
// restore objects positioned relative to the session anchor.
//
// A Session owns exactly one active Phase at a time. Phases are built on the
// anchorflow engine with full teardown enabled, so every transition exits all
// phases other than its target. Subscriptions to the mapping and tracking
// engines are explicit handles keyed by (source, phase) and are released on
// every exit path.
//
// A Session is not safe for concurrent use. Engine callbacks must be
// delivered on the goroutine that drives the session, typically by posting
// them to a realtime.Loop.
package session
