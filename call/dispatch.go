package call

import (
	"context"
	"sync"
)

// Dispatcher is the completion context of asynchronous deliveries.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

type inline struct{}

func (inline) Dispatch(fn func()) { fn() }

// Inline runs deliveries on the goroutine that completed the call.
var Inline Dispatcher = inline{}

// Loop is a Dispatcher that runs deliveries serially on the goroutine calling
// Run, giving callers a single-threaded delivery point.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	stop    sync.Once
}

var _ Dispatcher = (*Loop)(nil)

// NewLoop returns a loop whose queue holds up to buffer pending deliveries
// before Dispatch blocks.
func NewLoop(buffer int) *Loop {
	if buffer < 0 {
		buffer = 0
	}
	return &Loop{
		tasks:   make(chan func(), buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Dispatch queues fn. Once the loop is closed, fn runs on the calling goroutine.
func (l *Loop) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-l.done:
		fn()
		return
	default:
	}
	select {
	case l.tasks <- fn:
	case <-l.done:
		fn()
		return
	}
	// Run may have finished its final drain while fn was being queued.
	select {
	case <-l.stopped:
		l.drain()
	default:
	}
}

// Run executes queued deliveries until ctx is done or Close is called. Either
// way the loop is closed, queued deliveries are drained, and later Dispatch
// calls run inline. Run returns nil after Close and ctx.Err() otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.done:
			l.shutdown()
			return nil
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		}
	}
}

func (l *Loop) shutdown() {
	l.Close()
	l.stop.Do(func() { close(l.stopped) })
	l.drain()
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		default:
			return
		}
	}
}

// Close stops the loop. It is safe to call more than once.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}
