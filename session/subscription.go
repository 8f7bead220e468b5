package session

import (
	"fmt"
	"sort"
)

// SubscriptionKey identifies a subscription by event source and owning phase.
type SubscriptionKey struct {
	Source Source
	Phase  Phase
}

func (k SubscriptionKey) String() string {
	return fmt.Sprintf("%s@%s", k.Source, k.Phase)
}

// Subscription is a handle on one engine subscription owned by a phase.
// Release removes it exactly once; later calls are no-ops.
type Subscription struct {
	key      SubscriptionKey
	cancel   func()
	reg      *registry
	released bool
}

func (s *Subscription) Key() SubscriptionKey { return s.key }

// Active reports whether the subscription has not been released.
func (s *Subscription) Active() bool {
	return s != nil && !s.released
}

func (s *Subscription) Release() {
	if s == nil || s.released {
		return
	}
	s.released = true
	if s.cancel != nil {
		s.cancel()
	}
	s.reg.remove(s)
}

type registry struct {
	active    map[SubscriptionKey]*Subscription
	onAcquire func(SubscriptionKey)
	onRelease func(SubscriptionKey)
}

func newRegistry() *registry {
	return &registry{active: map[SubscriptionKey]*Subscription{}}
}

// acquire installs a subscription for key. subscribe receives the handle
// before it is active so callbacks can check they still own it.
func (r *registry) acquire(key SubscriptionKey, subscribe func(sub *Subscription) (cancel func())) (*Subscription, error) {
	if _, exists := r.active[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, key)
	}
	sub := &Subscription{key: key, reg: r}
	r.active[key] = sub
	sub.cancel = subscribe(sub)
	if r.onAcquire != nil {
		r.onAcquire(key)
	}
	return sub, nil
}

func (r *registry) get(key SubscriptionKey) *Subscription {
	return r.active[key]
}

func (r *registry) remove(sub *Subscription) {
	if r.active[sub.key] != sub {
		return
	}
	delete(r.active, sub.key)
	if r.onRelease != nil {
		r.onRelease(sub.key)
	}
}

// releasePhase releases every subscription owned by p.
func (r *registry) releasePhase(p Phase) {
	for _, sub := range r.list() {
		if sub.key.Phase == p {
			sub.Release()
		}
	}
}

func (r *registry) list() []*Subscription {
	out := make([]*Subscription, 0, len(r.active))
	for _, sub := range r.active {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].key.String() < out[j].key.String()
	})
	return out
}

func (r *registry) keys() []SubscriptionKey {
	subs := r.list()
	out := make([]SubscriptionKey, len(subs))
	for i, sub := range subs {
		out[i] = sub.key
	}
	return out
}
