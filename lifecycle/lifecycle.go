// Package lifecycle models an external lifecycle signal (a screen, a session,
// a request scope) that calls can be bound to.
package lifecycle

import (
	"context"
	"sync"
)

// State is a lifecycle state. States are ordered from Destroyed to Resumed.
type State int

const (
	Destroyed State = iota
	Initialized
	Created
	Started
	Resumed
)

func (s State) String() string {
	switch s {
	case Destroyed:
		return "destroyed"
	case Initialized:
		return "initialized"
	case Created:
		return "created"
	case Started:
		return "started"
	case Resumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// AtLeast reports whether s is at or above other.
func (s State) AtLeast(other State) bool { return s >= other }

// Subscription is released with Unsubscribe. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Owner is a source of lifecycle transitions.
type Owner interface {
	// State returns the current state.
	State() State

	// Subscribe registers fn for state transitions. fn is invoked once with the
	// current state during Subscribe, then on every transition until the
	// subscription is released.
	Subscribe(fn func(State)) Subscription
}

// Registry is an Owner whose state is driven by SetState.
type Registry struct {
	mu    sync.Mutex
	state State
	next  uint64
	subs  map[uint64]func(State)
}

var _ Owner = (*Registry)(nil)

// NewRegistry returns a registry in the initial state.
func NewRegistry(initial State) *Registry {
	return &Registry{state: initial, subs: make(map[uint64]func(State))}
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState moves the registry to s and notifies subscribers. Setting the
// current state again is a no-op.
func (r *Registry) SetState(s State) {
	r.mu.Lock()
	if r.state == s {
		r.mu.Unlock()
		return
	}
	r.state = s
	fns := make([]func(State), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Destroy is shorthand for SetState(Destroyed).
func (r *Registry) Destroy() { r.SetState(Destroyed) }

func (r *Registry) Subscribe(fn func(State)) Subscription {
	if fn == nil {
		return SubscriptionFunc(nil)
	}

	r.mu.Lock()
	if r.subs == nil {
		r.subs = make(map[uint64]func(State))
	}
	id := r.next
	r.next++
	r.subs[id] = fn
	current := r.state
	r.mu.Unlock()

	var once sync.Once
	sub := SubscriptionFunc(func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	})

	fn(current)
	return sub
}

// Subscribers returns the number of active subscriptions.
func (r *Registry) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// FromContext returns an owner in the Resumed state that moves to Destroyed
// when ctx is done.
func FromContext(ctx context.Context) *Registry {
	r := NewRegistry(Resumed)
	if ctx == nil {
		return r
	}
	context.AfterFunc(ctx, r.Destroy)
	return r
}
