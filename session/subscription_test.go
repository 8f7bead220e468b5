package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DuplicateRefused(t *testing.T) {
	r := newRegistry()
	key := SubscriptionKey{Source: SourceMapping, Phase: Scanning}
	cancels := 0
	subscribe := func(*Subscription) func() { return func() { cancels++ } }

	sub, err := r.acquire(key, subscribe)
	require.NoError(t, err)
	assert.True(t, sub.Active())

	_, err = r.acquire(key, subscribe)
	require.True(t, errors.Is(err, ErrDuplicateSubscription))
	assert.Equal(t, []SubscriptionKey{key}, r.keys())

	sub.Release()
	sub.Release()
	assert.Equal(t, 1, cancels)
	assert.False(t, sub.Active())
	assert.Empty(t, r.keys())

	again, err := r.acquire(key, subscribe)
	require.NoError(t, err)
	// A stale handle's release must not drop its successor.
	sub.Release()
	assert.True(t, again.Active())
	assert.Equal(t, []SubscriptionKey{key}, r.keys())
}

func TestRegistry_ReleasePhase(t *testing.T) {
	r := newRegistry()
	var released []SubscriptionKey
	r.onRelease = func(k SubscriptionKey) { released = append(released, k) }
	noop := func(*Subscription) func() { return func() {} }

	_, err := r.acquire(SubscriptionKey{SourceMapping, Scanning}, noop)
	require.NoError(t, err)
	_, err = r.acquire(SubscriptionKey{SourceTracking, Localizing}, noop)
	require.NoError(t, err)

	r.releasePhase(Scanning)
	r.releasePhase(InSession)
	assert.Equal(t, []SubscriptionKey{{SourceMapping, Scanning}}, released)
	assert.Equal(t, []SubscriptionKey{{SourceTracking, Localizing}}, r.keys())
}

func TestSubscription_NilSafe(t *testing.T) {
	var sub *Subscription
	assert.False(t, sub.Active())
	sub.Release()
}

func TestPhaseError(t *testing.T) {
	err := &PhaseError{Op: "SaveObjects", Phase: Scanning, Allowed: []Phase{InSession}}
	assert.Equal(t, "SaveObjects: invalid in phase scanning (allowed: in_session)", err.Error())
	assert.True(t, errors.Is(err, ErrPrecondition))
	assert.True(t, errors.Is(ErrNoMap, ErrPrecondition))
	assert.True(t, errors.Is(ErrScanInFlight, ErrPrecondition))
}
