package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRegistry_SubscribeCatchesUp(t *testing.T) {
	r := NewRegistry(Started)
	var got []State
	sub := r.Subscribe(func(s State) { got = append(got, s) })
	defer sub.Unsubscribe()

	if len(got) != 1 || got[0] != Started {
		t.Fatalf("got=%v, want [started]", got)
	}
}

func TestRegistry_NotifiesTransitions(t *testing.T) {
	r := NewRegistry(Resumed)
	var got []State
	r.Subscribe(func(s State) { got = append(got, s) })

	r.SetState(Started)
	r.SetState(Started)
	r.Destroy()

	want := []State{Resumed, Started, Destroyed}
	if len(got) != len(want) {
		t.Fatalf("got=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v, want %v", got, want)
		}
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := NewRegistry(Resumed)
	calls := 0
	sub := r.Subscribe(func(State) { calls++ })
	sub.Unsubscribe()
	sub.Unsubscribe()

	r.Destroy()
	if calls != 1 {
		t.Fatalf("calls=%d, want 1 (catch-up only)", calls)
	}
	if r.Subscribers() != 0 {
		t.Fatalf("subscribers=%d, want 0", r.Subscribers())
	}
}

func TestRegistry_UnsubscribeFromCallback(t *testing.T) {
	r := NewRegistry(Resumed)
	var sub Subscription
	var mu sync.Mutex
	calls := 0
	sub = r.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if s == Destroyed {
			sub.Unsubscribe()
		}
	})

	r.Destroy()
	r.SetState(Created)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls=%d, want 2", calls)
	}
}

func TestRegistry_NilCallback(t *testing.T) {
	r := NewRegistry(Resumed)
	r.Subscribe(nil).Unsubscribe()
	if r.Subscribers() != 0 {
		t.Fatalf("nil callback should not register")
	}
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	owner := FromContext(ctx)
	if owner.State() != Resumed {
		t.Fatalf("state=%v, want resumed", owner.State())
	}

	destroyed := make(chan struct{})
	owner.Subscribe(func(s State) {
		if s == Destroyed {
			close(destroyed)
		}
	})

	cancel()
	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatalf("owner not destroyed after context cancel")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Destroyed:   "destroyed",
		Initialized: "initialized",
		Created:     "created",
		Started:     "started",
		Resumed:     "resumed",
		State(99):   "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("%d: got %q, want %q", s, s.String(), want)
		}
	}
	if !Resumed.AtLeast(Started) || Created.AtLeast(Started) {
		t.Fatalf("AtLeast ordering broken")
	}
}
