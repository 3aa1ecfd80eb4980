// Package transporttest provides a scripted, in-memory transport.Call for tests
// and examples.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aponysus/simplecall/transport"
)

// Response is a canned transport.Response.
type Response[T any] struct {
	Code    int
	Payload T
	Present bool
	Meta    string
}

func (r *Response[T]) IsSuccessful() bool { return r.Code >= 200 && r.Code < 300 }
func (r *Response[T]) StatusCode() int    { return r.Code }
func (r *Response[T]) Body() (T, bool)    { return r.Payload, r.Present }

func (r *Response[T]) Raw() string {
	if r.Meta != "" {
		return r.Meta
	}
	return fmt.Sprintf("Response{code=%d}", r.Code)
}

// OK returns a 200 response carrying v.
func OK[T any](v T) *Response[T] {
	return &Response[T]{Code: 200, Payload: v, Present: true}
}

// NullBody returns a 200 response without a body.
func NullBody[T any]() *Response[T] {
	return &Response[T]{Code: 200}
}

// Status returns a body-less response with the given status code.
func Status[T any](code int) *Response[T] {
	return &Response[T]{Code: code}
}

// Step is one scripted execution. Exactly one of Response or Err should be set.
type Step[T any] struct {
	Response *Response[T]
	Err      error

	// Delay postpones the result. Cancellation interrupts the wait.
	Delay time.Duration
	// Gate, when non-nil, blocks the result until it is closed or the call is cancelled.
	Gate <-chan struct{}
}

// Script is shared by a call and all of its clones. Each execution consumes the
// next step; the last step repeats once the script is exhausted.
type Script[T any] struct {
	mu     sync.Mutex
	steps  []Step[T]
	next   int
	execs  int
	clones int
}

func (s *Script[T]) take() Step[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs++
	if len(s.steps) == 0 {
		return Step[T]{Response: NullBody[T]()}
	}
	st := s.steps[s.next]
	if s.next < len(s.steps)-1 {
		s.next++
	}
	return st
}

// Executions returns how many times the script was executed across all clones.
func (s *Script[T]) Executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execs
}

// Clones returns how many clones were created from the original call.
func (s *Script[T]) Clones() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clones
}

// Call is a scripted transport.Call.
type Call[T any] struct {
	script  *Script[T]
	request transport.Request
	timeout time.Duration

	mu       sync.Mutex
	executed bool
	canceled bool
	done     chan struct{}
}

var _ transport.Call[int] = (*Call[int])(nil)

// NewCall returns a call that plays steps in order.
func NewCall[T any](steps ...Step[T]) *Call[T] {
	return &Call[T]{
		script:  &Script[T]{steps: steps},
		request: transport.Request{Method: "GET", Target: "test://call"},
		done:    make(chan struct{}),
	}
}

// Respond is shorthand for a call whose executions all return resp.
func Respond[T any](resp *Response[T]) *Call[T] {
	return NewCall(Step[T]{Response: resp})
}

// Fail is shorthand for a call whose executions all fail with err.
func Fail[T any](err error) *Call[T] {
	return NewCall[T](Step[T]{Err: err})
}

// WithRequest sets the request descriptor reported by the call and its clones.
func (c *Call[T]) WithRequest(req transport.Request) *Call[T] {
	c.request = req
	return c
}

// WithTimeout sets the timeout reported by the call and its clones.
func (c *Call[T]) WithTimeout(d time.Duration) *Call[T] {
	c.timeout = d
	return c
}

// Script returns the script shared with clones.
func (c *Call[T]) Script() *Script[T] { return c.script }

func (c *Call[T]) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executed {
		return transport.ErrAlreadyExecuted
	}
	c.executed = true
	return nil
}

func (c *Call[T]) Execute(ctx context.Context) (transport.Response[T], error) {
	if err := c.start(); err != nil {
		return nil, err
	}
	return c.run(ctx)
}

func (c *Call[T]) Enqueue(ctx context.Context, onResponse func(transport.Response[T]), onFailure func(error)) {
	if err := c.start(); err != nil {
		go onFailure(err)
		return
	}
	go func() {
		resp, err := c.run(ctx)
		if err != nil {
			onFailure(err)
			return
		}
		onResponse(resp)
	}()
}

func (c *Call[T]) run(ctx context.Context) (transport.Response[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.IsCanceled() {
		return nil, transport.ErrCanceled
	}

	st := c.script.take()

	var timer <-chan time.Time
	if st.Delay > 0 {
		t := time.NewTimer(st.Delay)
		defer t.Stop()
		timer = t.C
	}
	if timer != nil || st.Gate != nil {
		select {
		case <-timer:
		case <-st.Gate:
		case <-c.done:
			return nil, transport.ErrCanceled
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if st.Err != nil {
		return nil, st.Err
	}
	if st.Response == nil {
		return NullBody[T](), nil
	}
	return st.Response, nil
}

func (c *Call[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.canceled {
		return
	}
	c.canceled = true
	close(c.done)
}

func (c *Call[T]) IsExecuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executed
}

func (c *Call[T]) IsCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

func (c *Call[T]) Clone() transport.Call[T] {
	c.script.mu.Lock()
	c.script.clones++
	c.script.mu.Unlock()
	return &Call[T]{
		script:  c.script,
		request: c.request,
		timeout: c.timeout,
		done:    make(chan struct{}),
	}
}

func (c *Call[T]) Request() transport.Request { return c.request }
func (c *Call[T]) Timeout() time.Duration     { return c.timeout }
