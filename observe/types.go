package observe

import (
	"context"
	"time"

	"github.com/aponysus/simplecall/classify"
)

// Execution modes reported in CallInfo.Mode.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Cancellation sources reported in CancelEvent.Source.
const (
	CancelExplicit  = "explicit"
	CancelLifecycle = "lifecycle"
	CancelBatch     = "batch"
)

// CallInfo identifies one execution of a handle.
type CallInfo struct {
	ID         string // Handle ID.
	BatchID    string // Batch ID when dispatched by a batch.
	Method     string // Request method.
	Target     string // Request target (URL, gRPC method, ...).
	Mode       string // ModeSync or ModeAsync.
	Generation uint64 // Execution generation, incremented on every run.
	Retry      bool   // Whether this execution is a retry.
}

// CallRecord describes a completed execution.
type CallRecord struct {
	CallInfo

	Start time.Time // Execution start time.
	End   time.Time // Classification end time.

	Kind       classify.OutcomeKind // Outcome shape.
	Reason     string               // Outcome reason (see classify reasons).
	StatusCode int                  // Response status, 0 if none.
	Err        error                // Classified error, if any.
}

// CancelEvent describes a cancellation request on a handle.
type CancelEvent struct {
	CallInfo

	Source string // CancelExplicit, CancelLifecycle or CancelBatch.
	Report bool   // Whether the resulting completion is delivered.
}

// BatchRecord describes a completed batch dispatch.
type BatchRecord struct {
	ID    string    // Batch ID.
	Size  int       // Number of handles dispatched.
	Retry bool      // Whether the dispatch was a retry.
	Start time.Time // Dispatch start time.
	End   time.Time // Time the last handle settled.

	Errors     int  // Handles that settled with an error.
	Suppressed int  // Handles whose cancellation was suppressed.
	Delivered  bool // Whether the aggregated callback was invoked.
}

// Observer receives lifecycle callbacks for handles and batches.
//
// Callbacks run on transport or batch goroutines and must not block.
type Observer interface {
	OnStart(ctx context.Context, info CallInfo)
	OnOutcome(ctx context.Context, rec CallRecord)
	OnSuppressed(ctx context.Context, rec CallRecord)
	OnCancel(ctx context.Context, ev CancelEvent)
	OnBatch(ctx context.Context, rec BatchRecord)
}

type callInfoKey struct{}

// WithCallInfo returns a context derived from ctx that carries info.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallFromContext returns the CallInfo from ctx, if present.
func CallFromContext(ctx context.Context) (CallInfo, bool) {
	if ctx == nil {
		return CallInfo{}, false
	}
	info, ok := ctx.Value(callInfoKey{}).(CallInfo)
	return info, ok
}
