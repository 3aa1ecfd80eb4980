package circuit

import (
	"context"
	"sync"
	"time"
)

// Defaults applied by NewConsecutiveFailureBreaker to non-positive arguments.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 10 * time.Second
)

// ConsecutiveFailureBreaker opens after a run of failures. Once the cooldown
// has elapsed it admits a single trial call whose result decides between
// closing and reopening. A canceled trial decides nothing and frees the slot.
type ConsecutiveFailureBreaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
	nowFn    func() time.Time
}

var _ Breaker = (*ConsecutiveFailureBreaker)(nil)

// NewConsecutiveFailureBreaker returns a closed breaker. Non-positive arguments
// fall back to DefaultThreshold and DefaultCooldown.
func NewConsecutiveFailureBreaker(threshold int, cooldown time.Duration) *ConsecutiveFailureBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &ConsecutiveFailureBreaker{threshold: threshold, cooldown: cooldown}
}

func (cb *ConsecutiveFailureBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

func (cb *ConsecutiveFailureBreaker) Allow(context.Context) Decision {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentLocked()
	switch {
	case state == StateOpen:
		return Decision{State: state, Reason: ReasonCircuitOpen}
	case state == StateHalfOpen && cb.trial:
		return Decision{State: state, Reason: ReasonCircuitTrialInFlight}
	case state == StateHalfOpen:
		cb.trial = true
	}
	return Decision{Allowed: true, State: state}
}

// Record applies the result of an allowed call. Results arriving while the
// breaker is open belong to calls admitted before it opened and are ignored.
func (cb *ConsecutiveFailureBreaker) Record(_ context.Context, r Result) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentLocked() {
	case StateClosed:
		switch r {
		case ResultSuccess:
			cb.failures = 0
		case ResultFailure:
			cb.failures++
			if cb.failures >= cb.threshold {
				cb.openLocked()
			}
		}
	case StateHalfOpen:
		switch r {
		case ResultSuccess:
			cb.state, cb.failures, cb.trial = StateClosed, 0, false
		case ResultFailure:
			cb.openLocked()
		case ResultCanceled:
			cb.trial = false
		}
	}
}

func (cb *ConsecutiveFailureBreaker) openLocked() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.trial = false
}

func (cb *ConsecutiveFailureBreaker) currentLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.trial = false
	}
	return cb.state
}

func (cb *ConsecutiveFailureBreaker) now() time.Time {
	if cb.nowFn != nil {
		return cb.nowFn()
	}
	return time.Now()
}

// SetClock overrides the breaker clock.
func (cb *ConsecutiveFailureBreaker) SetClock(f func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.nowFn = f
}
