package call

import (
	"context"
	"sync"
)

// Future is the awaitable result of an asynchronous execution. It resolves
// exactly once.
type Future[V any] struct {
	once sync.Once
	done chan struct{}
	val  V
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

func (f *Future[V]) resolve(v V) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Done is closed once the future resolves.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is done.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.val, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Value returns the resolved value without blocking.
func (f *Future[V]) Value() (V, bool) {
	select {
	case <-f.done:
		return f.val, true
	default:
		var zero V
		return zero, false
	}
}
