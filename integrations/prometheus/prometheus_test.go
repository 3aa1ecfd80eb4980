package prometheus

import (
	"context"
	"net/http"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/simplecall/call"
	"github.com/aponysus/simplecall/observe"
	"github.com/aponysus/simplecall/transport/transporttest"
)

type account struct {
	ID string
}

func newObserver(t *testing.T, opts ...Option) (*Observer, *prom.Registry) {
	t.Helper()
	reg := prom.NewRegistry()
	obs, err := NewObserver(reg, opts...)
	require.NoError(t, err)
	return obs, reg
}

func TestObserver_RecordsHandleOutcomes(t *testing.T) {
	obs, _ := newObserver(t)
	f := call.NewFactory(call.WithObserver(obs))

	_, err := call.Wrap[account](f, transporttest.Respond(transporttest.OK(account{ID: "a1"}))).Do(context.Background())
	require.NoError(t, err)
	_, err = call.Wrap[account](f, transporttest.Respond(transporttest.Status[account](http.StatusNotFound))).Do(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(obs.started.WithLabelValues(observe.ModeSync, "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.completed.WithLabelValues(observe.ModeSync, "payload", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.completed.WithLabelValues(observe.ModeSync, "error", "failed_response")))
	assert.Equal(t, 2, testutil.CollectAndCount(obs.latency))
}

func TestObserver_RecordsBatches(t *testing.T) {
	obs, _ := newObserver(t)
	f := call.NewFactory(call.WithObserver(obs))

	b, err := call.NewBatch(f,
		call.Wrap[account](f, transporttest.Respond(transporttest.OK(account{ID: "a1"}))),
		call.Wrap[account](f, transporttest.Respond(transporttest.OK(account{ID: "a2"}))),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := b.Go(ctx).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.batches.WithLabelValues("false", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(obs.started.WithLabelValues(observe.ModeAsync, "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(obs.batchSize))
}

func TestObserver_CancelAndSuppressed(t *testing.T) {
	obs, _ := newObserver(t)
	ctx := context.Background()

	obs.OnCancel(ctx, observe.CancelEvent{Source: observe.CancelLifecycle, Report: false})
	obs.OnCancel(ctx, observe.CancelEvent{Source: observe.CancelExplicit, Report: true})
	obs.OnSuppressed(ctx, observe.CallRecord{CallInfo: observe.CallInfo{Mode: observe.ModeAsync}})

	assert.Equal(t, 1.0, testutil.ToFloat64(obs.cancels.WithLabelValues(observe.CancelLifecycle, "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.cancels.WithLabelValues(observe.CancelExplicit, "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.suppressed.WithLabelValues(observe.ModeAsync)))
}

func TestObserver_SkipsLatencyWithoutTimestamps(t *testing.T) {
	obs, _ := newObserver(t)
	obs.OnOutcome(context.Background(), observe.CallRecord{CallInfo: observe.CallInfo{Mode: observe.ModeSync}, Reason: "success"})

	assert.Equal(t, 0, testutil.CollectAndCount(obs.latency))
}

func TestNewObserver_Namespace(t *testing.T) {
	obs, reg := newObserver(t, WithNamespace("billing"))
	obs.OnStart(context.Background(), observe.CallInfo{Mode: observe.ModeSync})

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "billing_calls_started_total")
}

func TestNewObserver_DuplicateRegistration(t *testing.T) {
	_, reg := newObserver(t)

	_, err := NewObserver(reg)
	assert.Error(t, err)

	_, err = NewObserver(reg, WithNamespace("other"))
	assert.NoError(t, err)
}
