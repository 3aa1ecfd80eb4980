package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aponysus/simplecall/circuit"
	"github.com/aponysus/simplecall/classify"
	"github.com/aponysus/simplecall/lifecycle"
	"github.com/aponysus/simplecall/observe"
	"github.com/aponysus/simplecall/transport"
)

// Callback receives the outcome of one execution. payload is nil unless the
// outcome carries a payload; err is nil unless it is an error.
type Callback[T any] func(payload *T, err error, h *Handle[T])

// Mode is the execution mode last used by a handle.
type Mode int

const (
	ModeNone Mode = iota
	ModeSync
	ModeAsync
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return observe.ModeSync
	case ModeAsync:
		return observe.ModeAsync
	default:
		return "none"
	}
}

// Handle wraps one transport call and delivers its classified outcome.
//
// A Handle is owned by the caller that created it. Its methods are safe for
// concurrent use, but retrying while an execution is still in flight
// supersedes that execution: its completion is not delivered.
type Handle[T any] struct {
	f   *Factory
	id  string
	log *zap.Logger

	mu         sync.Mutex
	call       transport.Call[T]
	conds      classify.ConditionSet
	dispatcher Dispatcher
	mode       Mode
	retrying   bool
	cb         Callback[T]
	gen        uint64
	canceled   bool
	report     bool
	binding    *binding
}

// Wrap returns a handle for c using the defaults of f. A nil factory means
// DefaultFactory().
func Wrap[T any](f *Factory, c transport.Call[T]) *Handle[T] {
	f = orDefault(f)
	id := uuid.NewString()
	return &Handle[T]{
		f:          f,
		id:         id,
		log:        f.logger.With(zap.String("call_id", id)),
		call:       c,
		conds:      f.Conditions(),
		dispatcher: f.dispatcher,
	}
}

// ID returns the handle's unique identifier.
func (h *Handle[T]) ID() string { return h.id }

// Include adds c to the handle's condition set.
func (h *Handle[T]) Include(c classify.Condition) *Handle[T] {
	h.mu.Lock()
	h.conds.Include(c)
	h.mu.Unlock()
	return h
}

// Exclude removes c from the handle's condition set.
func (h *Handle[T]) Exclude(c classify.Condition) *Handle[T] {
	h.mu.Lock()
	h.conds.Exclude(c)
	h.mu.Unlock()
	return h
}

// Profile replaces the handle's condition set with a named profile. Unknown
// names leave the set unchanged.
func (h *Handle[T]) Profile(name string) *Handle[T] {
	set, ok := h.f.profiles.Get(name)
	if !ok {
		h.log.Warn("unknown condition profile", zap.String("profile", name))
		return h
	}
	h.mu.Lock()
	h.conds = set
	h.mu.Unlock()
	return h
}

// On sets the completion context of asynchronous deliveries.
func (h *Handle[T]) On(d Dispatcher) *Handle[T] {
	if d == nil {
		d = Inline
	}
	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()
	return h
}

// Lifecycle binds cancellation of the handle to owner: when owner reaches
// state, or is destroyed, the handle is cancelled once. report controls
// whether that cancellation reaches asynchronous callbacks. Binding again
// replaces the previous binding; a nil owner unbinds.
func (h *Handle[T]) Lifecycle(owner lifecycle.Owner, state lifecycle.State, report bool) *Handle[T] {
	h.mu.Lock()
	prev := h.binding
	h.binding = nil
	h.mu.Unlock()
	prev.release()

	if owner == nil {
		return h
	}

	b := bind(owner, state, report, func(report bool) {
		h.cancel(observe.CancelLifecycle, report)
	})

	h.mu.Lock()
	prev = h.binding
	h.binding = b
	h.mu.Unlock()
	prev.release()
	return h
}

// Unbind releases the lifecycle binding, if any.
func (h *Handle[T]) Unbind() *Handle[T] {
	h.mu.Lock()
	b := h.binding
	h.binding = nil
	h.mu.Unlock()
	b.release()
	return h
}

// Execute runs the call on the calling goroutine and invokes cb inline with
// the outcome. cb is remembered for Retry.
func (h *Handle[T]) Execute(ctx context.Context, cb Callback[T]) {
	h.remember(cb)
	h.execute(ctx, cb)
}

// Do runs the call on the calling goroutine and returns the outcome. A benign
// empty result returns (nil, nil).
func (h *Handle[T]) Do(ctx context.Context) (*T, error) {
	h.remember(nil)
	var out classify.Outcome[T]
	h.launch(ctx, ModeSync, "", func(o classify.Outcome[T], _ settlement) {
		out = o
	})
	return out.Payload, out.Err
}

// Enqueue runs the call in the background. cb is invoked once on the
// handle's Dispatcher, unless the handle was cancelled with reporting
// suppressed. cb is remembered for Retry.
func (h *Handle[T]) Enqueue(ctx context.Context, cb Callback[T]) {
	h.remember(cb)
	h.enqueue(ctx, cb)
}

// Go runs the call in the background and returns a future of its outcome. The
// future always resolves, including for suppressed cancellations.
func (h *Handle[T]) Go(ctx context.Context) *Future[classify.Outcome[T]] {
	h.remember(nil)
	fut := newFuture[classify.Outcome[T]]()
	h.launch(ctx, ModeAsync, "", func(out classify.Outcome[T], _ settlement) {
		fut.resolve(out)
	})
	return fut
}

// Cancel cancels the underlying call. An explicit cancellation is always
// reported to the callback.
func (h *Handle[T]) Cancel() {
	h.cancel(observe.CancelExplicit, true)
}

// Retry re-runs the handle in the mode last used. A consumed transport call is
// replaced by a clone. A nil cb retries with the remembered callback. Retrying
// a handle that never executed is a no-op.
func (h *Handle[T]) Retry(ctx context.Context, cb Callback[T]) {
	mode, remembered, ok := h.prepareRetry()
	if !ok {
		h.log.Debug("retry ignored: handle never executed")
		return
	}
	if cb == nil {
		cb = remembered
	}
	if mode == ModeSync {
		h.execute(ctx, cb)
		return
	}
	h.enqueue(ctx, cb)
}

func (h *Handle[T]) IsExecuted() bool { return h.current().IsExecuted() }

func (h *Handle[T]) IsCanceled() bool { return h.current().IsCanceled() }

// Request returns the request descriptor of the underlying call.
func (h *Handle[T]) Request() transport.Request { return h.current().Request() }

// Timeout returns the timeout of the underlying call.
func (h *Handle[T]) Timeout() time.Duration { return h.current().Timeout() }

// Conditions returns a copy of the handle's condition set.
func (h *Handle[T]) Conditions() classify.ConditionSet {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conds.Clone()
}

// Mode returns the execution mode last used.
func (h *Handle[T]) Mode() Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// Generation returns the number of executions started so far.
func (h *Handle[T]) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

func (h *Handle[T]) current() transport.Call[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.call
}

func (h *Handle[T]) remember(cb Callback[T]) {
	h.mu.Lock()
	h.cb = cb
	h.mu.Unlock()
}

func (h *Handle[T]) execute(ctx context.Context, cb Callback[T]) {
	h.launch(ctx, ModeSync, "", func(out classify.Outcome[T], s settlement) {
		if s.stale {
			return
		}
		h.invoke(cb, out)
	})
}

func (h *Handle[T]) enqueue(ctx context.Context, cb Callback[T]) {
	h.mu.Lock()
	d := h.dispatcher
	h.mu.Unlock()

	h.launch(ctx, ModeAsync, "", func(out classify.Outcome[T], s settlement) {
		if s.stale || s.suppressed || cb == nil {
			return
		}
		d.Dispatch(func() { h.invoke(cb, out) })
	})
}

func (h *Handle[T]) invoke(cb Callback[T], out classify.Outcome[T]) {
	if cb == nil {
		return
	}
	h.f.guard(h.log, "callback", h.id, func() {
		cb(out.Payload, out.Err, h)
	})
}

// prepareRetry swaps in a clone when the current call is spent and resets the
// cancellation flags. ok is false when the handle never executed.
func (h *Handle[T]) prepareRetry() (mode Mode, cb Callback[T], ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mode == ModeNone {
		return ModeNone, nil, false
	}
	if h.call.IsExecuted() || h.call.IsCanceled() {
		h.call = h.call.Clone()
		h.log.Debug("cloned call for retry", zap.Uint64("generation", h.gen))
	}
	h.canceled = false
	h.report = false
	h.retrying = true
	h.log.Debug("retrying call", zap.String("mode", h.mode.String()))
	return h.mode, h.cb, true
}

func (h *Handle[T]) cancel(source string, report bool) {
	h.mu.Lock()
	h.canceled = true
	if report {
		h.report = true
	}
	c := h.call
	info := h.infoLocked("")
	reported := h.report
	h.mu.Unlock()

	c.Cancel()

	ctx := observe.WithCallInfo(context.Background(), info)
	h.f.observer.OnCancel(ctx, observe.CancelEvent{CallInfo: info, Source: source, Report: reported})
	if source == observe.CancelLifecycle {
		h.log.Info("lifecycle canceled call", zap.Bool("report", reported))
		return
	}
	h.log.Debug("canceled call", zap.String("source", source))
}

// settlement describes how a completion relates to the handle's current state.
type settlement struct {
	gen        uint64
	stale      bool // A newer execution has started.
	suppressed bool // Cancelled with reporting suppressed.
}

type execution[T any] struct {
	call  transport.Call[T]
	conds classify.ConditionSet
	info  observe.CallInfo
	start time.Time
}

func (h *Handle[T]) begin(mode Mode, batchID string) execution[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.gen++
	h.mode = mode
	info := h.infoLocked(batchID)
	info.Retry = h.retrying
	h.retrying = false

	return execution[T]{
		call:  h.call,
		conds: h.conds,
		info:  info,
		start: h.f.clock(),
	}
}

func (h *Handle[T]) infoLocked(batchID string) observe.CallInfo {
	req := h.call.Request()
	return observe.CallInfo{
		ID:         h.id,
		BatchID:    batchID,
		Method:     req.Method,
		Target:     req.Target,
		Mode:       h.mode.String(),
		Generation: h.gen,
	}
}

// launch starts one execution and hands its outcome to settle on the
// completing goroutine. settle is invoked exactly once.
func (h *Handle[T]) launch(ctx context.Context, mode Mode, batchID string, settle func(classify.Outcome[T], settlement)) {
	if ctx == nil {
		ctx = context.Background()
	}
	ex := h.begin(mode, batchID)
	ctx = observe.WithCallInfo(ctx, ex.info)

	h.f.observer.OnStart(ctx, ex.info)
	h.log.Debug("dispatching call",
		zap.String("mode", ex.info.Mode),
		zap.Uint64("generation", ex.info.Generation),
		zap.Bool("retry", ex.info.Retry),
		zap.String("target", ex.info.Target),
	)

	breaker, err := h.admit(ctx, ex.info.Target)
	finish := func(out classify.Outcome[T]) {
		feedBreaker(ctx, breaker, out)
		settle(out, h.complete(ctx, ex, out))
	}

	if err != nil {
		out := classify.Failed[T](err)
		if mode == ModeAsync {
			go finish(out)
		} else {
			finish(out)
		}
		return
	}

	if mode == ModeSync {
		resp, err := ex.call.Execute(ctx)
		finish(classify.Classify(resp, err, ex.conds))
		return
	}

	ex.call.Enqueue(ctx,
		func(resp transport.Response[T]) {
			finish(classify.Classify(resp, nil, ex.conds))
		},
		func(err error) {
			finish(classify.Failed[T](err))
		},
	)
}

func (h *Handle[T]) complete(ctx context.Context, ex execution[T], out classify.Outcome[T]) settlement {
	h.mu.Lock()
	s := settlement{gen: ex.info.Generation, stale: ex.info.Generation != h.gen}
	s.suppressed = !s.stale && ex.info.Mode == observe.ModeAsync && h.canceled && !h.report
	current := h.gen
	h.mu.Unlock()

	rec := observe.CallRecord{
		CallInfo:   ex.info,
		Start:      ex.start,
		End:        h.f.clock(),
		Kind:       out.Kind,
		Reason:     out.Reason,
		StatusCode: out.StatusCode,
		Err:        out.Err,
	}

	switch {
	case s.stale:
		h.log.Warn("dropping stale completion",
			zap.Uint64("generation", s.gen),
			zap.Uint64("current_generation", current),
		)
	case s.suppressed:
		h.f.observer.OnSuppressed(ctx, rec)
		h.log.Debug("suppressed canceled call", zap.String("reason", out.Reason))
	default:
		h.f.observer.OnOutcome(ctx, rec)
	}
	return s
}

func (h *Handle[T]) admit(ctx context.Context, target string) (circuit.Breaker, error) {
	cb := h.f.breakers.Get(target)
	if cb == nil {
		return nil, nil
	}
	if d := cb.Allow(ctx); !d.Allowed {
		h.log.Debug("circuit rejected call", zap.String("state", d.State.String()), zap.String("reason", d.Reason))
		return nil, d.Reject(target)
	}
	return cb, nil
}

// feedBreaker counts transport errors and 5xx responses as failures. A canceled
// call says nothing about the target.
func feedBreaker[T any](ctx context.Context, cb circuit.Breaker, out classify.Outcome[T]) {
	if cb == nil {
		return
	}
	cb.Record(ctx, breakerResult(out))
}

func breakerResult[T any](out classify.Outcome[T]) circuit.Result {
	switch {
	case out.Reason == classify.ReasonCanceled:
		return circuit.ResultCanceled
	case out.Reason == classify.ReasonTransportError || out.StatusCode >= 500:
		return circuit.ResultFailure
	default:
		return circuit.ResultSuccess
	}
}
