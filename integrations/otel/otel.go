// Package otel traces handle executions and batch dispatches with OpenTelemetry.
//
// Each execution becomes one span started in OnStart and ended when the
// execution is delivered or suppressed. A span left open by a superseded
// generation is ended when the next generation of the same handle starts.
package otel

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/simplecall/observe"
)

// ScopeName is the instrumentation scope used when no tracer is supplied.
const ScopeName = "github.com/aponysus/simplecall"

// Attribute keys set on spans.
const (
	AttrCallID     = attribute.Key("simplecall.call.id")
	AttrBatchID    = attribute.Key("simplecall.batch.id")
	AttrMethod     = attribute.Key("simplecall.request.method")
	AttrTarget     = attribute.Key("simplecall.request.target")
	AttrMode       = attribute.Key("simplecall.mode")
	AttrGeneration = attribute.Key("simplecall.generation")
	AttrRetry      = attribute.Key("simplecall.retry")
	AttrKind       = attribute.Key("simplecall.outcome.kind")
	AttrReason     = attribute.Key("simplecall.outcome.reason")
	AttrStatusCode = attribute.Key("simplecall.status_code")
	AttrSuppressed = attribute.Key("simplecall.suppressed")
	AttrStale      = attribute.Key("simplecall.stale")
	AttrBatchSize  = attribute.Key("simplecall.batch.size")
	AttrErrors     = attribute.Key("simplecall.batch.errors")
	AttrDelivered  = attribute.Key("simplecall.batch.delivered")
)

// Option configures an Observer.
type Option func(*Observer)

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Observer) {
		if tp != nil {
			o.tracer = tp.Tracer(ScopeName)
		}
	}
}

type openSpan struct {
	gen  uint64
	span trace.Span
}

// Observer is an observe.Observer that records spans.
type Observer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]openSpan
}

var _ observe.Observer = (*Observer)(nil)

// NewObserver returns an observer using the global tracer provider unless
// WithTracerProvider is given.
func NewObserver(opts ...Option) *Observer {
	o := &Observer{spans: make(map[string]openSpan)}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer(ScopeName)
	}
	return o
}

func callAttributes(info observe.CallInfo) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrCallID.String(info.ID),
		AttrMethod.String(info.Method),
		AttrTarget.String(info.Target),
		AttrMode.String(info.Mode),
		AttrGeneration.Int64(int64(info.Generation)),
		AttrRetry.Bool(info.Retry),
	}
	if info.BatchID != "" {
		attrs = append(attrs, AttrBatchID.String(info.BatchID))
	}
	return attrs
}

func (o *Observer) OnStart(ctx context.Context, info observe.CallInfo) {
	name := strings.TrimSpace(info.Method + " " + info.Target)
	if name == "" {
		name = "call"
	}
	_, span := o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(callAttributes(info)...),
	)

	o.mu.Lock()
	prev, ok := o.spans[info.ID]
	o.spans[info.ID] = openSpan{gen: info.Generation, span: span}
	o.mu.Unlock()

	if ok {
		prev.span.SetAttributes(AttrStale.Bool(true))
		prev.span.End()
	}
}

// take removes the open span of info's generation. It returns nil for a
// generation that was already superseded.
func (o *Observer) take(info observe.CallInfo) trace.Span {
	o.mu.Lock()
	defer o.mu.Unlock()
	open, ok := o.spans[info.ID]
	if !ok || open.gen != info.Generation {
		return nil
	}
	delete(o.spans, info.ID)
	return open.span
}

func (o *Observer) OnOutcome(_ context.Context, rec observe.CallRecord) {
	span := o.take(rec.CallInfo)
	if span == nil {
		return
	}
	span.SetAttributes(
		AttrKind.String(rec.Kind.String()),
		AttrReason.String(rec.Reason),
	)
	if rec.StatusCode != 0 {
		span.SetAttributes(AttrStatusCode.Int(rec.StatusCode))
	}
	if rec.Err != nil {
		span.RecordError(rec.Err)
		span.SetStatus(codes.Error, rec.Reason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(rec.End))
}

func (o *Observer) OnSuppressed(_ context.Context, rec observe.CallRecord) {
	span := o.take(rec.CallInfo)
	if span == nil {
		return
	}
	span.SetAttributes(AttrSuppressed.Bool(true), AttrReason.String(rec.Reason))
	span.End(trace.WithTimestamp(rec.End))
}

func (o *Observer) OnCancel(_ context.Context, ev observe.CancelEvent) {
	o.mu.Lock()
	open, ok := o.spans[ev.ID]
	o.mu.Unlock()
	if !ok {
		return
	}
	open.span.AddEvent("cancel", trace.WithAttributes(
		attribute.String("source", ev.Source),
		attribute.Bool("report", ev.Report),
	))
}

func (o *Observer) OnBatch(ctx context.Context, rec observe.BatchRecord) {
	_, span := o.tracer.Start(ctx, "batch",
		trace.WithTimestamp(rec.Start),
		trace.WithAttributes(
			AttrBatchID.String(rec.ID),
			AttrBatchSize.Int(rec.Size),
			AttrRetry.Bool(rec.Retry),
			AttrErrors.Int(rec.Errors),
			AttrDelivered.Bool(rec.Delivered),
		),
	)
	if rec.Errors > 0 {
		span.SetStatus(codes.Error, "batch has failed calls")
	}
	span.End(trace.WithTimestamp(rec.End))
}

// Open returns the number of executions whose span has not ended.
func (o *Observer) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}
