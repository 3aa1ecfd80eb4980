package circuit

import (
	"errors"
	"testing"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{state: StateClosed, want: "closed"},
		{state: StateOpen, want: "open"},
		{state: StateHalfOpen, want: "half-open"},
		{state: State(99), want: "unknown"},
	}

	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Fatalf("state %v: got %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestDecisionReject(t *testing.T) {
	if err := (Decision{Allowed: true}).Reject("svc"); err != nil {
		t.Fatalf("allowed decision should not reject, got %v", err)
	}

	err := Decision{State: StateOpen, Reason: ReasonCircuitOpen}.Reject("http://svc/users")
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err=%v, want ErrOpen", err)
	}
	var oe *OpenError
	if !errors.As(err, &oe) || oe.Target != "http://svc/users" || oe.State != StateOpen {
		t.Fatalf("open error=%+v", oe)
	}
}
