// Package transport defines the minimal call and response contracts that the
// simplecall core consumes.
//
// Implementations own connection handling, request serialization and payload
// decoding. See integrations/http and integrations/grpc for reference transports.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCanceled is returned (or wrapped) by a Call that was cancelled before
	// it produced a response.
	ErrCanceled = errors.New("simplecall: call canceled")

	// ErrAlreadyExecuted is returned when Execute or Enqueue is invoked on a
	// Call that has already been consumed. Use Clone to obtain a fresh call.
	ErrAlreadyExecuted = errors.New("simplecall: call already executed")
)

// Request describes the request carried by a Call, for introspection only.
type Request struct {
	Method   string
	Target   string
	Metadata map[string][]string
}

// Response is a transport response whose payload has already been decoded.
type Response[T any] interface {
	// IsSuccessful reports whether the response carries a success status.
	IsSuccessful() bool
	// StatusCode is the transport status code (HTTP status, gRPC code, ...).
	StatusCode() int
	// Body returns the decoded payload and whether a body was present.
	Body() (T, bool)
	// Raw is a human-readable summary of the response metadata.
	Raw() string
}

// Call is a single transport request of result type T.
//
// A Call may be executed once, either synchronously or asynchronously.
type Call[T any] interface {
	// Execute runs the request on the calling goroutine.
	Execute(ctx context.Context) (Response[T], error)

	// Enqueue runs the request in the background. Exactly one of onResponse or
	// onFailure is invoked, on a goroutine owned by the transport.
	Enqueue(ctx context.Context, onResponse func(Response[T]), onFailure func(error))

	// Cancel requests cancellation. It is safe to call at any time.
	Cancel()

	IsExecuted() bool
	IsCanceled() bool

	// Clone returns a new, unconsumed call for the same request.
	Clone() Call[T]

	Request() Request
	Timeout() time.Duration
}

// IsCanceled reports whether err is cancellation-shaped.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
