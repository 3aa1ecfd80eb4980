// Package simplecall is a thin facade over a process-wide default call.Factory.
//
// Programs that need more than one configuration should build factories with
// call.NewFactory and pass them explicitly.
package simplecall

import (
	"context"

	"github.com/aponysus/simplecall/call"
	"github.com/aponysus/simplecall/classify"
	"github.com/aponysus/simplecall/config"
	"github.com/aponysus/simplecall/transport"
)

// Condition is a classification condition.
type Condition = classify.Condition

const (
	NullResponse    = classify.NullResponse
	EmptyCollection = classify.EmptyCollection
)

// Init sets the default factory.
// It must be called before any other function in this package.
func Init(f *call.Factory) {
	call.SetGlobal(f)
}

// InitFromFile loads a YAML configuration from path and installs the
// resulting factory as the default.
func InitFromFile(path string, extra ...call.FactoryOption) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	f, err := cfg.NewFactory(extra...)
	if err != nil {
		return err
	}
	Init(f)
	return nil
}

// Factory returns the default factory.
func Factory() *call.Factory { return call.DefaultFactory() }

// Wrap returns a handle for c using the default factory.
func Wrap[T any](c transport.Call[T]) *call.Handle[T] {
	return call.Wrap(call.DefaultFactory(), c)
}

// Batch returns a batch over handles using the default factory.
func Batch[R any](handles ...*call.Handle[R]) (*call.Batch[R], error) {
	return call.NewBatch(call.DefaultFactory(), handles...)
}

// Do wraps c, runs it on the calling goroutine and returns the outcome.
func Do[T any](ctx context.Context, c transport.Call[T], conds ...Condition) (*T, error) {
	h := Wrap(c)
	for _, cond := range conds {
		h.Include(cond)
	}
	return h.Do(ctx)
}

// Go wraps c, runs it in the background and returns a future of its outcome.
func Go[T any](ctx context.Context, c transport.Call[T], conds ...Condition) *call.Future[classify.Outcome[T]] {
	h := Wrap(c)
	for _, cond := range conds {
		h.Include(cond)
	}
	return h.Go(ctx)
}
