package circuit

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*ConsecutiveFailureBreaker, *fakeClock) {
	cb := NewConsecutiveFailureBreaker(threshold, cooldown)
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb.SetClock(clock.Now)
	return cb, clock
}

func TestConsecutiveFailureBreaker_Transitions(t *testing.T) {
	cooldown := 50 * time.Millisecond
	cb, clock := newTestBreaker(3, cooldown)
	ctx := context.Background()

	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.State())
	}
	if d := cb.Allow(ctx); !d.Allowed {
		t.Fatalf("expected allowed while closed")
	}

	for _, r := range []Result{ResultFailure, ResultFailure, ResultSuccess, ResultFailure, ResultFailure} {
		cb.Record(ctx, r)
	}
	if cb.State() != StateClosed {
		t.Fatalf("success should reset the failure count")
	}

	cb.Record(ctx, ResultFailure)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 consecutive failures")
	}
	d := cb.Allow(ctx)
	if d.Allowed || d.Reason != ReasonCircuitOpen {
		t.Fatalf("decision=%+v, want rejected open", d)
	}

	clock.Advance(cooldown + time.Millisecond)
	if d := cb.Allow(ctx); !d.Allowed || d.State != StateHalfOpen {
		t.Fatalf("decision=%+v, want half-open trial", d)
	}
	if d := cb.Allow(ctx); d.Allowed || d.Reason != ReasonCircuitTrialInFlight {
		t.Fatalf("decision=%+v, want trial limit", d)
	}

	cb.Record(ctx, ResultSuccess)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful trial, got %v", cb.State())
	}
}

func TestConsecutiveFailureBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	ctx := context.Background()

	cb.Record(ctx, ResultFailure)
	clock.Advance(2 * time.Second)
	if d := cb.Allow(ctx); !d.Allowed {
		t.Fatalf("expected trial")
	}
	cb.Record(ctx, ResultFailure)
	if cb.State() != StateOpen {
		t.Fatalf("expected reopen, got %v", cb.State())
	}
	if d := cb.Allow(ctx); d.Allowed {
		t.Fatalf("reopened breaker restarts its cooldown")
	}
}

func TestConsecutiveFailureBreaker_CanceledTrialFreesSlot(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	ctx := context.Background()

	cb.Record(ctx, ResultFailure)
	clock.Advance(2 * time.Second)
	if d := cb.Allow(ctx); !d.Allowed {
		t.Fatalf("expected trial")
	}
	cb.Record(ctx, ResultCanceled)
	if cb.State() != StateHalfOpen {
		t.Fatalf("canceled trial must not close the breaker, got %v", cb.State())
	}

	if d := cb.Allow(ctx); !d.Allowed || d.State != StateHalfOpen {
		t.Fatalf("decision=%+v, want a fresh trial after cancellation", d)
	}
	cb.Record(ctx, ResultFailure)
	if cb.State() != StateOpen {
		t.Fatalf("expected reopen after failed trial, got %v", cb.State())
	}
}

func TestConsecutiveFailureBreaker_CanceledKeepsFailureRun(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)
	ctx := context.Background()

	cb.Record(ctx, ResultFailure)
	cb.Record(ctx, ResultCanceled)
	cb.Record(ctx, ResultFailure)
	if cb.State() != StateOpen {
		t.Fatalf("cancellation between failures must not reset the run, got %v", cb.State())
	}
}

func TestConsecutiveFailureBreaker_IgnoresResultsWhileOpen(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	ctx := context.Background()

	cb.Record(ctx, ResultFailure)
	cb.Record(ctx, ResultSuccess)
	if cb.State() != StateOpen {
		t.Fatalf("late success must not close an open breaker, got %v", cb.State())
	}
	clock.Advance(500 * time.Millisecond)
	cb.Record(ctx, ResultFailure)
	clock.Advance(600 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("late failure must not extend the cooldown, got %v", cb.State())
	}
}

func TestNewConsecutiveFailureBreaker_Defaults(t *testing.T) {
	cb := NewConsecutiveFailureBreaker(0, 0)
	if cb.threshold != DefaultThreshold || cb.cooldown != DefaultCooldown {
		t.Fatalf("threshold=%d cooldown=%v", cb.threshold, cb.cooldown)
	}
}

func TestResult_String(t *testing.T) {
	cases := map[Result]string{
		ResultSuccess:  "success",
		ResultFailure:  "failure",
		ResultCanceled: "canceled",
		Result(42):     "unknown",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Fatalf("Result(%d).String()=%q, want %q", int(r), got, want)
		}
	}
}
