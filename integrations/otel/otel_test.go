package otel_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aponysus/simplecall/call"
	integration "github.com/aponysus/simplecall/integrations/otel"
	"github.com/aponysus/simplecall/lifecycle"
	"github.com/aponysus/simplecall/observe"
	"github.com/aponysus/simplecall/transport"
	"github.com/aponysus/simplecall/transport/transporttest"
)

type order struct {
	ID string
}

func newTracer(t *testing.T) (*integration.Observer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return integration.NewObserver(integration.WithTracerProvider(provider)), recorder
}

func attr(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestObserver_SpanPerExecution(t *testing.T) {
	obs, rec := newTracer(t)
	f := call.NewFactory(call.WithObserver(obs))
	req := transport.Request{Method: http.MethodGet, Target: "/orders/1"}

	h := call.Wrap[order](f, transporttest.Respond(transporttest.OK(order{ID: "1"})).WithRequest(req))
	_, err := h.Do(context.Background())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "GET /orders/1", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	id, ok := attr(span.Attributes(), integration.AttrCallID)
	require.True(t, ok)
	assert.Equal(t, h.ID(), id.AsString())
	reason, _ := attr(span.Attributes(), integration.AttrReason)
	assert.Equal(t, "success", reason.AsString())
	assert.Equal(t, 0, obs.Open())
}

func TestObserver_ErrorStatus(t *testing.T) {
	obs, rec := newTracer(t)
	f := call.NewFactory(call.WithObserver(obs))

	_, err := call.Wrap[order](f, transporttest.Respond(transporttest.Status[order](http.StatusBadGateway))).Do(context.Background())
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	code, ok := attr(spans[0].Attributes(), integration.AttrStatusCode)
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusBadGateway), code.AsInt64())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestObserver_SuppressedSpan(t *testing.T) {
	obs, rec := newTracer(t)
	f := call.NewFactory(call.WithObserver(obs))
	owner := lifecycle.NewRegistry(lifecycle.Resumed)

	c := transporttest.NewCall(transporttest.Step[order]{Response: transporttest.OK(order{}), Delay: 50 * time.Millisecond})
	fut := call.Wrap[order](f, c).Lifecycle(owner, lifecycle.Destroyed, false).Go(context.Background())
	owner.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := fut.Wait(ctx)
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	suppressed, ok := attr(spans[0].Attributes(), integration.AttrSuppressed)
	require.True(t, ok)
	assert.True(t, suppressed.AsBool())

	var names []string
	for _, ev := range spans[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "cancel")
}

func TestObserver_SupersededGenerationEnds(t *testing.T) {
	obs, rec := newTracer(t)
	ctx := context.Background()

	obs.OnStart(ctx, observe.CallInfo{ID: "h1", Generation: 1})
	obs.OnStart(ctx, observe.CallInfo{ID: "h1", Generation: 2})
	require.Len(t, rec.Ended(), 1)
	stale, _ := attr(rec.Ended()[0].Attributes(), integration.AttrStale)
	assert.True(t, stale.AsBool())

	obs.OnOutcome(ctx, observe.CallRecord{CallInfo: observe.CallInfo{ID: "h1", Generation: 1}})
	assert.Len(t, rec.Ended(), 1, "late completion of a superseded generation is ignored")

	obs.OnOutcome(ctx, observe.CallRecord{CallInfo: observe.CallInfo{ID: "h1", Generation: 2}})
	assert.Len(t, rec.Ended(), 2)
	assert.Equal(t, 0, obs.Open())
}

func TestObserver_BatchSpan(t *testing.T) {
	obs, rec := newTracer(t)
	f := call.NewFactory(call.WithObserver(obs))

	b, err := call.NewBatch(f,
		call.Wrap[order](f, transporttest.Respond(transporttest.OK(order{ID: "1"}))),
		call.Wrap[order](f, transporttest.Respond(transporttest.Status[order](http.StatusNotFound))),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = b.Go(ctx).Wait(ctx)
	require.NoError(t, err)

	var batch sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "batch" {
			batch = s
		}
	}
	require.NotNil(t, batch)
	assert.Equal(t, codes.Error, batch.Status().Code)
	size, _ := attr(batch.Attributes(), integration.AttrBatchSize)
	assert.Equal(t, int64(2), size.AsInt64())
	assert.Len(t, rec.Ended(), 3)
}
