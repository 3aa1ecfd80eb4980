package call

import (
	"sync"

	"github.com/aponysus/simplecall/lifecycle"
)

// binding cancels a handle once when its owner reaches the trigger state or
// is destroyed.
type binding struct {
	owner   lifecycle.Owner
	trigger lifecycle.State
	report  bool
	fire    func(report bool)

	mu       sync.Mutex
	sub      lifecycle.Subscription
	fired    bool
	released bool
}

func bind(owner lifecycle.Owner, trigger lifecycle.State, report bool, fire func(report bool)) *binding {
	b := &binding{owner: owner, trigger: trigger, report: report, fire: fire}
	// Subscribe catches up with the current state, so the binding may fire
	// before the subscription is known.
	b.attach(owner.Subscribe(b.observe))
	return b
}

func (b *binding) observe(s lifecycle.State) {
	if s != b.trigger && s != lifecycle.Destroyed {
		return
	}

	b.mu.Lock()
	if b.fired || b.released {
		b.mu.Unlock()
		return
	}
	b.fired = true
	sub := b.sub
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	b.fire(b.report)
}

func (b *binding) attach(sub lifecycle.Subscription) {
	b.mu.Lock()
	b.sub = sub
	spent := b.fired || b.released
	b.mu.Unlock()

	if spent && sub != nil {
		sub.Unsubscribe()
	}
}

func (b *binding) release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.released = true
	sub := b.sub
	b.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
