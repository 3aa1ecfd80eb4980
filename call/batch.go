package call

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aponysus/simplecall/classify"
	"github.com/aponysus/simplecall/lifecycle"
	"github.com/aponysus/simplecall/observe"
)

// BatchCallback receives the aggregated outcome of a batch dispatch. The
// slices are aligned with the batch's handle order.
type BatchCallback[R any] func(payloads []*R, errs []error, handles []*Handle[R], b *Batch[R])

// Results holds the aligned outcomes of one batch dispatch.
type Results[R any] struct {
	Payloads []*R
	Errs     []error
	Handles  []*Handle[R]
}

// Len returns the number of slots.
func (r Results[R]) Len() int { return len(r.Handles) }

func newResults[R any](handles []*Handle[R]) Results[R] {
	return Results[R]{
		Payloads: make([]*R, len(handles)),
		Errs:     make([]error, len(handles)),
		Handles:  handles,
	}
}

type batchBinding struct {
	owner  lifecycle.Owner
	state  lifecycle.State
	report bool
}

// Batch dispatches an ordered set of handles concurrently and delivers one
// aggregated callback after all of them settled.
//
// Dropping a Batch does not cancel its handles; call Cancel.
type Batch[R any] struct {
	f   *Factory
	id  string
	log *zap.Logger

	mu         sync.Mutex
	handles    []*Handle[R]
	results    Results[R]
	cb         BatchCallback[R]
	gen        uint64
	binding    *batchBinding
	dispatcher Dispatcher
	limit      int
}

// NewBatch returns a batch over handles using the defaults of f. A nil factory
// means DefaultFactory(). Nil or repeated handles are rejected.
func NewBatch[R any](f *Factory, handles ...*Handle[R]) (*Batch[R], error) {
	if err := validateHandles(handles); err != nil {
		return nil, err
	}
	f = orDefault(f)
	id := uuid.NewString()
	hs := slices.Clone(handles)
	return &Batch[R]{
		f:          f,
		id:         id,
		log:        f.logger.With(zap.String("batch_id", id)),
		handles:    hs,
		results:    newResults(hs),
		dispatcher: f.dispatcher,
		limit:      f.maxConcurrency,
	}, nil
}

func validateHandles[R any](handles []*Handle[R]) error {
	seen := make(map[*Handle[R]]struct{}, len(handles))
	for i, h := range handles {
		if h == nil {
			return &HandleError{Index: i, Err: ErrNilHandle}
		}
		if _, dup := seen[h]; dup {
			return &HandleError{Index: i, Err: ErrDuplicateHandle}
		}
		seen[h] = struct{}{}
	}
	return nil
}

// ID returns the batch's unique identifier.
func (b *Batch[R]) ID() string { return b.id }

// On sets the completion context of the aggregated callback.
func (b *Batch[R]) On(d Dispatcher) *Batch[R] {
	if d == nil {
		d = Inline
	}
	b.mu.Lock()
	b.dispatcher = d
	b.mu.Unlock()
	return b
}

// Limit bounds the number of handles in flight per dispatch. Zero is unbounded.
func (b *Batch[R]) Limit(n int) *Batch[R] {
	if n < 0 {
		n = 0
	}
	b.mu.Lock()
	b.limit = n
	b.mu.Unlock()
	return b
}

// Lifecycle stores a lifecycle binding applied to every handle at dispatch
// time. Handles already bound keep their binding until the next dispatch.
func (b *Batch[R]) Lifecycle(owner lifecycle.Owner, state lifecycle.State, report bool) *Batch[R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if owner == nil {
		b.binding = nil
		return b
	}
	b.binding = &batchBinding{owner: owner, state: state, report: report}
	return b
}

// Enqueue dispatches every handle and invokes cb once on the batch's
// Dispatcher after all handles settled. cb is skipped when every handle
// suppressed its cancellation. cb is remembered for Retry.
func (b *Batch[R]) Enqueue(ctx context.Context, cb BatchCallback[R]) {
	b.mu.Lock()
	b.cb = cb
	b.mu.Unlock()
	b.enqueue(ctx, cb, false)
}

// Retry dispatches the batch again. Explicit handles replace the current set;
// handles dropped from the set are not cancelled. Each handle is retried in
// place, and handles that never executed are dispatched fresh. A nil cb
// retries with the remembered callback.
func (b *Batch[R]) Retry(ctx context.Context, cb BatchCallback[R], handles ...*Handle[R]) error {
	if len(handles) > 0 {
		if err := validateHandles(handles); err != nil {
			return err
		}
	}

	b.mu.Lock()
	if len(handles) > 0 {
		b.handles = slices.Clone(handles)
		b.results = newResults(b.handles)
	}
	if cb == nil {
		cb = b.cb
	}
	n := len(b.handles)
	b.mu.Unlock()

	b.log.Debug("retrying batch", zap.Int("size", n), zap.Bool("replaced", len(handles) > 0))
	b.enqueue(ctx, cb, true)
	return nil
}

// Go dispatches every handle and returns a future of the aggregated results.
// The future resolves even when every handle suppressed its cancellation.
func (b *Batch[R]) Go(ctx context.Context) *Future[Results[R]] {
	fut := newFuture[Results[R]]()
	b.dispatch(ctx, false, func(res Results[R], _ bool, _ bool) {
		fut.resolve(res)
	})
	return fut
}

// Cancel cancels every held handle. It does not produce a callback of its own.
func (b *Batch[R]) Cancel() {
	for _, h := range b.Handles() {
		h.cancel(observe.CancelBatch, true)
	}
}

// Handles returns the current handles in order.
func (b *Batch[R]) Handles() []*Handle[R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.handles)
}

// Results returns the outcomes of the last completed dispatch, or empty slots
// if none completed since the handle set was last replaced.
func (b *Batch[R]) Results() Results[R] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Results[R]{
		Payloads: slices.Clone(b.results.Payloads),
		Errs:     slices.Clone(b.results.Errs),
		Handles:  slices.Clone(b.results.Handles),
	}
}

func (b *Batch[R]) enqueue(ctx context.Context, cb BatchCallback[R], retry bool) {
	b.mu.Lock()
	d := b.dispatcher
	b.mu.Unlock()

	b.dispatch(ctx, retry, func(res Results[R], stale, allSuppressed bool) {
		if stale || allSuppressed || cb == nil {
			return
		}
		d.Dispatch(func() {
			b.f.guard(b.log, "batch_callback", b.id, func() {
				cb(res.Payloads, res.Errs, res.Handles, b)
			})
		})
	})
}

// dispatch runs every handle on a dedicated goroutine and calls deliver once
// all of them settled.
func (b *Batch[R]) dispatch(ctx context.Context, retry bool, deliver func(res Results[R], stale, allSuppressed bool)) {
	if ctx == nil {
		ctx = context.Background()
	}

	b.mu.Lock()
	b.gen++
	gen := b.gen
	handles := slices.Clone(b.handles)
	bnd := b.binding
	limit := b.limit
	b.mu.Unlock()

	index := make(map[*Handle[R]]int, len(handles))
	for i, h := range handles {
		index[h] = i
	}

	b.log.Debug("dispatching batch", zap.Int("size", len(handles)), zap.Bool("retry", retry))

	go func() {
		start := b.f.clock()
		res := newResults(handles)

		var (
			mu         sync.Mutex
			failed     int
			suppressed int
		)
		record := func(h *Handle[R], out classify.Outcome[R], s settlement) {
			mu.Lock()
			defer mu.Unlock()
			if s.suppressed {
				// Suppressed slots stay empty.
				suppressed++
				return
			}
			i := index[h]
			res.Payloads[i] = out.Payload
			res.Errs[i] = out.Err
			if out.Err != nil {
				failed++
			}
		}

		var g errgroup.Group
		if limit > 0 {
			g.SetLimit(limit)
		}
		for _, h := range handles {
			g.Go(func() error {
				done := make(chan struct{})
				h.dispatchInBatch(ctx, b.id, retry, bnd, func(out classify.Outcome[R], s settlement) {
					record(h, out, s)
					close(done)
				})
				<-done
				return nil
			})
		}
		_ = g.Wait()

		b.mu.Lock()
		stale := gen != b.gen
		if !stale {
			b.results = res
		}
		b.mu.Unlock()

		allSuppressed := len(handles) > 0 && suppressed == len(handles)
		b.f.observer.OnBatch(ctx, observe.BatchRecord{
			ID:         b.id,
			Size:       len(handles),
			Retry:      retry,
			Start:      start,
			End:        b.f.clock(),
			Errors:     failed,
			Suppressed: suppressed,
			Delivered:  !stale && !allSuppressed,
		})

		switch {
		case stale:
			b.log.Warn("dropping stale batch completion", zap.Uint64("generation", gen))
		case allSuppressed:
			b.log.Debug("batch canceled with reporting suppressed")
		}
		deliver(res, stale, allSuppressed)
	}()
}

// dispatchInBatch runs h asynchronously on behalf of a batch without touching
// its remembered callback.
func (h *Handle[T]) dispatchInBatch(ctx context.Context, batchID string, retry bool, bnd *batchBinding, settle func(classify.Outcome[T], settlement)) {
	if retry {
		// Handles that never executed are dispatched fresh.
		h.prepareRetry()
	}
	// Bind after the retry reset so a spent owner cancels the new execution.
	if bnd != nil {
		h.Lifecycle(bnd.owner, bnd.state, bnd.report)
	}
	h.launch(ctx, ModeAsync, batchID, settle)
}
