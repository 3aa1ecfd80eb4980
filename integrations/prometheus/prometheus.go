// Package prometheus exports handle and batch activity as Prometheus metrics.
package prometheus

import (
	"context"
	"errors"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/aponysus/simplecall/observe"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "simplecall"

// Option configures an Observer.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithBuckets sets the latency histogram buckets, in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		if len(b) > 0 {
			o.buckets = b
		}
	}
}

// Observer is an observe.Observer that records Prometheus metrics.
type Observer struct {
	started    *prom.CounterVec
	completed  *prom.CounterVec
	latency    *prom.HistogramVec
	suppressed *prom.CounterVec
	cancels    *prom.CounterVec
	batches    *prom.CounterVec
	batchTime  prom.Histogram
	batchSize  prom.Histogram
}

var _ observe.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewObserver(reg prom.Registerer, opts ...Option) (*Observer, error) {
	o := options{namespace: DefaultNamespace, buckets: prom.DefBuckets}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	obs := &Observer{
		started: prom.NewCounterVec(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "calls_started_total",
			Help:      "Total number of handle executions started.",
		}, []string{"mode", "retry"}),
		completed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "calls_completed_total",
			Help:      "Total number of delivered handle executions by outcome.",
		}, []string{"mode", "kind", "reason"}),
		latency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: o.namespace,
			Name:      "call_duration_seconds",
			Help:      "Handle execution latency in seconds.",
			Buckets:   o.buckets,
		}, []string{"mode", "kind"}),
		suppressed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "calls_suppressed_total",
			Help:      "Total number of canceled executions whose delivery was suppressed.",
		}, []string{"mode"}),
		cancels: prom.NewCounterVec(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "cancels_total",
			Help:      "Total number of cancellation requests by source.",
		}, []string{"source", "report"}),
		batches: prom.NewCounterVec(prom.CounterOpts{
			Namespace: o.namespace,
			Name:      "batches_total",
			Help:      "Total number of batch dispatches.",
		}, []string{"retry", "delivered"}),
		batchTime: prom.NewHistogram(prom.HistogramOpts{
			Namespace: o.namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time from batch dispatch until the last handle settled.",
			Buckets:   o.buckets,
		}),
		batchSize: prom.NewHistogram(prom.HistogramOpts{
			Namespace: o.namespace,
			Name:      "batch_size",
			Help:      "Number of handles per batch dispatch.",
			Buckets:   prom.ExponentialBuckets(1, 2, 8),
		}),
	}

	for _, c := range obs.collectors() {
		if err := reg.Register(c); err != nil {
			var are prom.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, errors.New("simplecall: prometheus collectors already registered; use WithNamespace or a separate registry")
			}
			return nil, err
		}
	}
	return obs, nil
}

func (o *Observer) collectors() []prom.Collector {
	return []prom.Collector{o.started, o.completed, o.latency, o.suppressed, o.cancels, o.batches, o.batchTime, o.batchSize}
}

func (o *Observer) OnStart(_ context.Context, info observe.CallInfo) {
	o.started.WithLabelValues(info.Mode, strconv.FormatBool(info.Retry)).Inc()
}

func (o *Observer) OnOutcome(_ context.Context, rec observe.CallRecord) {
	kind := rec.Kind.String()
	o.completed.WithLabelValues(rec.Mode, kind, rec.Reason).Inc()
	if !rec.Start.IsZero() && !rec.End.Before(rec.Start) {
		o.latency.WithLabelValues(rec.Mode, kind).Observe(rec.End.Sub(rec.Start).Seconds())
	}
}

func (o *Observer) OnSuppressed(_ context.Context, rec observe.CallRecord) {
	o.suppressed.WithLabelValues(rec.Mode).Inc()
}

func (o *Observer) OnCancel(_ context.Context, ev observe.CancelEvent) {
	o.cancels.WithLabelValues(ev.Source, strconv.FormatBool(ev.Report)).Inc()
}

func (o *Observer) OnBatch(_ context.Context, rec observe.BatchRecord) {
	o.batches.WithLabelValues(strconv.FormatBool(rec.Retry), strconv.FormatBool(rec.Delivered)).Inc()
	o.batchSize.Observe(float64(rec.Size))
	if !rec.Start.IsZero() && !rec.End.Before(rec.Start) {
		o.batchTime.Observe(rec.End.Sub(rec.Start).Seconds())
	}
}
