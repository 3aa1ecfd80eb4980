// Package grpc implements transport.Call for unary gRPC methods.
//
// A completed RPC is a response: codes.OK is successful and every other status
// the server returned is an unsuccessful response whose StatusCode is the gRPC
// code. Cancellation, deadline expiry and connection failures are reported as
// transport errors instead.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/aponysus/simplecall/observe"
	"github.com/aponysus/simplecall/transport"
)

// RequestMethod is reported as transport.Request.Method for every call.
const RequestMethod = "UNARY"

// Option configures a Call.
type Option func(*options)

type options struct {
	timeout   time.Duration
	md        metadata.MD
	callIDKey string
	callOpts  []grpc.CallOption
}

// WithTimeout bounds each execution with a deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetadata appends outgoing metadata to every execution.
func WithMetadata(md metadata.MD) Option {
	return func(o *options) { o.md = metadata.Join(o.md, md) }
}

// WithCallIDKey sets an outgoing metadata key carrying the handle ID.
func WithCallIDKey(key string) Option {
	return func(o *options) { o.callIDKey = strings.ToLower(key) }
}

// WithCallOptions passes opts to every Invoke.
func WithCallOptions(opts ...grpc.CallOption) Option {
	return func(o *options) { o.callOpts = append(o.callOpts, opts...) }
}

// Call is a single unary RPC whose reply is T, typically a pointer to a
// generated message.
type Call[T any] struct {
	cc       grpc.ClientConnInterface
	method   string
	req      any
	newReply func() T
	opts     options

	mu       sync.Mutex
	executed bool
	canceled bool
	cancel   context.CancelFunc
}

var _ transport.Call[*struct{}] = (*Call[*struct{}])(nil)

// NewCall returns a call invoking method with req. newReply allocates the reply
// message for each execution.
func NewCall[T any](cc grpc.ClientConnInterface, method string, req any, newReply func() T, opts ...Option) (*Call[T], error) {
	if cc == nil {
		return nil, errors.New("simplecall: nil grpc connection")
	}
	if method == "" {
		return nil, errors.New("simplecall: empty grpc method")
	}
	if newReply == nil {
		return nil, errors.New("simplecall: nil grpc reply factory")
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Call[T]{cc: cc, method: method, req: req, newReply: newReply, opts: o}, nil
}

func (c *Call[T]) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executed {
		return nil, nil, transport.ErrAlreadyExecuted
	}
	c.executed = true
	if c.canceled {
		return nil, nil, transport.ErrCanceled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if c.opts.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	c.cancel = cancel
	return ctx, cancel, nil
}

func (c *Call[T]) Execute(ctx context.Context) (transport.Response[T], error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.invoke(ctx)
}

func (c *Call[T]) Enqueue(ctx context.Context, onResponse func(transport.Response[T]), onFailure func(error)) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		go onFailure(err)
		return
	}
	go func() {
		defer cancel()
		resp, err := c.invoke(ctx)
		if err != nil {
			onFailure(err)
			return
		}
		onResponse(resp)
	}()
}

func (c *Call[T]) invoke(ctx context.Context) (transport.Response[T], error) {
	md := c.opts.md.Copy()
	if c.opts.callIDKey != "" {
		if info, ok := observe.CallFromContext(ctx); ok {
			md = metadata.Join(md, metadata.Pairs(c.opts.callIDKey, info.ID))
		}
	}
	if len(md) > 0 {
		if existing, ok := metadata.FromOutgoingContext(ctx); ok {
			md = metadata.Join(existing, md)
		}
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	var header metadata.MD
	reply := c.newReply()
	opts := append([]grpc.CallOption{grpc.Header(&header)}, c.opts.callOpts...)
	err := c.cc.Invoke(ctx, c.method, c.req, reply, opts...)

	st, ok := status.FromError(err)
	if !ok {
		return nil, c.requestError(codes.Unknown, err)
	}
	switch st.Code() {
	case codes.Canceled, codes.DeadlineExceeded, codes.Unavailable:
		return nil, c.requestError(st.Code(), err)
	}

	r := &Response[T]{code: st.Code(), message: st.Message(), method: c.method, header: header}
	if st.Code() == codes.OK {
		r.body, r.present = reply, true
	}
	return r, nil
}

func (c *Call[T]) requestError(code codes.Code, err error) error {
	if c.IsCanceled() || code == codes.Canceled {
		err = errors.Join(transport.ErrCanceled, err)
	}
	return &RequestError{Method: c.method, Code: code, Err: err}
}

func (c *Call[T]) Cancel() {
	c.mu.Lock()
	c.canceled = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
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

// Clone returns an unconsumed call for the same method and request message.
func (c *Call[T]) Clone() transport.Call[T] {
	return &Call[T]{cc: c.cc, method: c.method, req: c.req, newReply: c.newReply, opts: c.opts}
}

func (c *Call[T]) Request() transport.Request {
	return transport.Request{
		Method:   RequestMethod,
		Target:   c.method,
		Metadata: map[string][]string(c.opts.md.Copy()),
	}
}

// Timeout returns the configured per-execution deadline, or zero.
func (c *Call[T]) Timeout() time.Duration { return c.opts.timeout }

// Response is a completed unary RPC.
type Response[T any] struct {
	code    codes.Code
	message string
	method  string
	header  metadata.MD
	body    T
	present bool
}

func (r *Response[T]) IsSuccessful() bool { return r.code == codes.OK }
func (r *Response[T]) StatusCode() int    { return int(r.code) }
func (r *Response[T]) Body() (T, bool)    { return r.body, r.present }

// Code returns the gRPC status code.
func (r *Response[T]) Code() codes.Code { return r.code }

// Header returns the response header metadata.
func (r *Response[T]) Header() metadata.MD { return r.header }

func (r *Response[T]) Raw() string {
	return fmt.Sprintf("Response{protocol=grpc, code=%d, status=%s, message=%s, method=%s}",
		r.code, r.code, r.message, r.method)
}

// RequestError wraps an RPC that did not complete with a server status.
type RequestError struct {
	Method string
	Code   codes.Code
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("simplecall: grpc %s (%s): %v", e.Method, e.Code, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
