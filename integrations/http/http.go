// Package http implements transport.Call over net/http with JSON decoding.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/aponysus/simplecall/observe"
	"github.com/aponysus/simplecall/transport"
)

const (
	// drainLimit bounds how much of an unsuccessful body is read before closing.
	drainLimit = 4096

	// DefaultMaxBody bounds decoded success bodies.
	DefaultMaxBody int64 = 10 << 20
)

// ErrBodyNotReplayable is returned when a request with a body has no GetBody,
// so the call could not be cloned for retry.
var ErrBodyNotReplayable = errors.New("simplecall: request body is not replayable (GetBody is nil)")

// ErrBodyTooLarge is wrapped in a DecodeError when a success body exceeds the
// WithMaxBody limit.
var ErrBodyTooLarge = errors.New("simplecall: response body exceeds max body size")

// Decoder turns a success body into a payload. present is false for an
// absent body.
type Decoder[T any] func(body []byte) (v T, present bool, err error)

// JSON decodes a JSON body. An empty body or a literal null is absent.
func JSON[T any]() Decoder[T] {
	return func(body []byte) (T, bool, error) {
		var v T
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return v, false, nil
		}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return v, false, err
		}
		return v, true, nil
	}
}

// Option configures a Call.
type Option func(*options)

type options struct {
	callIDHeader string
	maxBody      int64
}

// WithCallIDHeader sets a request header carrying the handle ID.
func WithCallIDHeader(name string) Option {
	return func(o *options) { o.callIDHeader = name }
}

// WithMaxBody bounds the size of decoded success bodies.
func WithMaxBody(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// Call is a single HTTP request decoded into T.
type Call[T any] struct {
	client *http.Client
	req    *http.Request
	decode Decoder[T]
	opts   options

	mu       sync.Mutex
	executed bool
	canceled bool
	cancel   context.CancelFunc
}

var _ transport.Call[struct{}] = (*Call[struct{}])(nil)

// NewCall returns a call decoding success bodies as JSON. A nil client means
// http.DefaultClient.
func NewCall[T any](client *http.Client, req *http.Request, opts ...Option) (*Call[T], error) {
	return NewCallWithDecoder(client, req, JSON[T](), opts...)
}

// NewCallWithDecoder returns a call decoding success bodies with decode.
func NewCallWithDecoder[T any](client *http.Client, req *http.Request, decode Decoder[T], opts ...Option) (*Call[T], error) {
	if req == nil {
		return nil, errors.New("simplecall: nil request")
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}
	if client == nil {
		client = http.DefaultClient
	}
	if decode == nil {
		decode = JSON[T]()
	}
	o := options{maxBody: DefaultMaxBody}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Call[T]{client: client, req: req, decode: decode, opts: o}, nil
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
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return ctx, cancel, nil
}

func (c *Call[T]) Execute(ctx context.Context) (transport.Response[T], error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.do(ctx)
}

func (c *Call[T]) Enqueue(ctx context.Context, onResponse func(transport.Response[T]), onFailure func(error)) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		go onFailure(err)
		return
	}
	go func() {
		defer cancel()
		resp, err := c.do(ctx)
		if err != nil {
			onFailure(err)
			return
		}
		onResponse(resp)
	}()
}

func (c *Call[T]) do(ctx context.Context) (transport.Response[T], error) {
	out := c.req.Clone(ctx)
	if c.req.GetBody != nil {
		body, err := c.req.GetBody()
		if err != nil {
			return nil, c.requestError(err)
		}
		out.Body = body
	}
	if c.opts.callIDHeader != "" {
		if info, ok := observe.CallFromContext(ctx); ok {
			out.Header.Set(c.opts.callIDHeader, info.ID)
		}
	}

	resp, err := c.client.Do(out)
	if err != nil {
		return nil, c.requestError(err)
	}
	defer resp.Body.Close()

	r := &Response[T]{
		code:   resp.StatusCode,
		proto:  resp.Proto,
		header: resp.Header,
		method: c.req.Method,
		url:    c.req.URL.String(),
	}

	if !r.IsSuccessful() {
		// Drain a bounded prefix so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
		return r, nil
	}

	limit := c.opts.maxBody
	if limit < math.MaxInt64 {
		limit++
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, c.requestError(err)
	}
	if int64(len(data)) > c.opts.maxBody {
		return nil, &DecodeError{StatusCode: resp.StatusCode, Err: ErrBodyTooLarge}
	}
	v, present, err := c.decode(data)
	if err != nil {
		return nil, &DecodeError{StatusCode: resp.StatusCode, Err: err}
	}
	r.body, r.present = v, present
	return r, nil
}

func (c *Call[T]) requestError(err error) error {
	if c.IsCanceled() {
		err = errors.Join(transport.ErrCanceled, err)
	}
	return &RequestError{Method: c.req.Method, URL: c.req.URL.String(), Err: err}
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

// Clone returns an unconsumed call for the same request. The request body is
// replayed through GetBody.
func (c *Call[T]) Clone() transport.Call[T] {
	return &Call[T]{client: c.client, req: c.req, decode: c.decode, opts: c.opts}
}

func (c *Call[T]) Request() transport.Request {
	return transport.Request{
		Method:   c.req.Method,
		Target:   c.req.URL.String(),
		Metadata: map[string][]string(c.req.Header.Clone()),
	}
}

// Timeout returns the client timeout, or zero when unbounded.
func (c *Call[T]) Timeout() time.Duration { return c.client.Timeout }

// Response is a decoded HTTP response.
type Response[T any] struct {
	code    int
	proto   string
	header  http.Header
	method  string
	url     string
	body    T
	present bool
}

func (r *Response[T]) IsSuccessful() bool { return r.code >= 200 && r.code < 300 }
func (r *Response[T]) StatusCode() int    { return r.code }
func (r *Response[T]) Body() (T, bool)    { return r.body, r.present }

// Header returns the response headers.
func (r *Response[T]) Header() http.Header { return r.header }

func (r *Response[T]) Raw() string {
	return fmt.Sprintf("Response{protocol=%s, code=%d, message=%s, method=%s, url=%s}",
		r.proto, r.code, http.StatusText(r.code), r.method, r.url)
}

// RequestError wraps a failure to obtain a response.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("simplecall: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// DecodeError reports a success body that could not be decoded.
type DecodeError struct {
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("simplecall: decode %d body: %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
