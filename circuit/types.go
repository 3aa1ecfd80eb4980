// Package circuit guards handle execution per request target with a
// consecutive-failure circuit breaker.
package circuit

import (
	"context"
	"errors"
)

// ErrOpen matches every *OpenError.
var ErrOpen = errors.New("simplecall: circuit open")

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Calls flow to the transport.
	StateOpen                  // Calls fail fast without reaching the transport.
	StateHalfOpen              // One trial call is let through.
)

const (
	ReasonCircuitOpen          = "circuit_open"
	ReasonCircuitTrialInFlight = "circuit_trial_in_flight"
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Decision is the result of asking a breaker to let a call through.
type Decision struct {
	Allowed bool
	State   State
	Reason  string
}

// Result is what a finished call tells a breaker about its target.
type Result int

const (
	ResultSuccess  Result = iota // The target answered.
	ResultFailure                // Transport error or server-side failure.
	ResultCanceled               // The caller gave up before the target answered.
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Breaker decides whether calls to a target may proceed. Every allowed call
// must be followed by exactly one Record.
type Breaker interface {
	Allow(ctx context.Context) Decision
	Record(ctx context.Context, r Result)
	State() State
}

// OpenError is reported instead of a transport error when a breaker rejects a call.
type OpenError struct {
	Target string
	State  State
	Reason string
}

func (e *OpenError) Error() string {
	return "simplecall: circuit " + e.State.String() + " for " + e.Target + " (" + e.Reason + ")"
}

func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// Reject converts a denied decision into an *OpenError.
func (d Decision) Reject(target string) error {
	if d.Allowed {
		return nil
	}
	return &OpenError{Target: target, State: d.State, Reason: d.Reason}
}
