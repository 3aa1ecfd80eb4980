package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aponysus/simplecall/observe"
)

const waitTimeout = 2 * time.Second

type user struct {
	Name string
}

type delivery[T any] struct {
	payload *T
	err     error
	h       *Handle[T]
}

func collect[T any]() (Callback[T], <-chan delivery[T]) {
	ch := make(chan delivery[T], 16)
	return func(p *T, err error, h *Handle[T]) {
		ch <- delivery[T]{payload: p, err: err, h: h}
	}, ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for delivery")
	}
	var zero T
	return zero
}

func expectNone[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		require.FailNowf(t, "unexpected delivery", "%+v", v)
	case <-time.After(wait):
	}
}

type batchDelivery[R any] struct {
	payloads []*R
	errs     []error
	handles  []*Handle[R]
}

func collectBatch[R any]() (BatchCallback[R], <-chan batchDelivery[R]) {
	ch := make(chan batchDelivery[R], 8)
	return func(p []*R, errs []error, hs []*Handle[R], _ *Batch[R]) {
		ch <- batchDelivery[R]{payloads: p, errs: errs, handles: hs}
	}, ch
}

// recordingObserver counts events and tracks in-flight executions.
type recordingObserver struct {
	observe.BaseObserver

	mu          sync.Mutex
	starts      int
	outcomes    []observe.CallRecord
	suppressed  []observe.CallRecord
	cancels     []observe.CancelEvent
	batches     []observe.BatchRecord
	inflight    int
	maxInflight int

	settled chan struct{}
	batched chan observe.BatchRecord
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		settled: make(chan struct{}, 64),
		batched: make(chan observe.BatchRecord, 16),
	}
}

func (o *recordingObserver) OnStart(context.Context, observe.CallInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.inflight++
	if o.inflight > o.maxInflight {
		o.maxInflight = o.inflight
	}
}

func (o *recordingObserver) OnOutcome(_ context.Context, rec observe.CallRecord) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, rec)
	o.inflight--
	o.mu.Unlock()
	o.settled <- struct{}{}
}

func (o *recordingObserver) OnSuppressed(_ context.Context, rec observe.CallRecord) {
	o.mu.Lock()
	o.suppressed = append(o.suppressed, rec)
	o.inflight--
	o.mu.Unlock()
	o.settled <- struct{}{}
}

func (o *recordingObserver) OnCancel(_ context.Context, ev observe.CancelEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels = append(o.cancels, ev)
}

func (o *recordingObserver) OnBatch(_ context.Context, rec observe.BatchRecord) {
	o.mu.Lock()
	o.batches = append(o.batches, rec)
	o.mu.Unlock()
	o.batched <- rec
}

func (o *recordingObserver) snapshot() (starts, outcomes, suppressed, maxInflight int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.starts, len(o.outcomes), len(o.suppressed), o.maxInflight
}

func (o *recordingObserver) waitSettled(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		receive(t, (<-chan struct{})(o.settled))
	}
}

func observedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func waitForLog(t *testing.T, logs *observer.ObservedLogs, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return logs.FilterMessage(msg).Len() > 0
	}, waitTimeout, 5*time.Millisecond, "log %q not observed", msg)
}
