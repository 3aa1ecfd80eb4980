package classify

import (
	"github.com/aponysus/simplecall/internal"
	"github.com/aponysus/simplecall/transport"
)

// OutcomeKind describes the shape of a classified result.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomePayload
	OutcomeEmpty
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePayload:
		return "payload"
	case OutcomeEmpty:
		return "empty"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Standard Outcome.Reason strings.
const (
	ReasonSuccess         = "success"
	ReasonNullBody        = "null_body"
	ReasonNullData        = "null_data"
	ReasonEmptyCollection = "empty_collection"
	ReasonFailedResponse  = "failed_response"
	ReasonTransportError  = "transport_error"
	ReasonCanceled        = "canceled"
)

// Outcome is the classified result of one execution.
//
// Payload and Err are never both set. Both are nil for a benign empty result.
type Outcome[T any] struct {
	Kind    OutcomeKind
	Payload *T
	Err     error
	Reason  string

	// StatusCode is the response status, or 0 when no response was obtained.
	StatusCode int
}

// Value returns the payload and whether one is present.
func (o Outcome[T]) Value() (T, bool) {
	if o.Payload == nil {
		var zero T
		return zero, false
	}
	return *o.Payload, true
}

// Failed returns an error outcome for a transport-level failure.
func Failed[T any](err error) Outcome[T] {
	reason := ReasonTransportError
	if transport.IsCanceled(err) {
		reason = ReasonCanceled
	}
	return Outcome[T]{Kind: OutcomeError, Err: err, Reason: reason}
}

// Classify turns a transport result into an Outcome using set.
//
// Checks run in a fixed order: transport error, unsuccessful status, absent
// body, empty collection. Emptiness is only considered for collection-shaped
// payloads.
func Classify[T any](resp transport.Response[T], err error, set ConditionSet) Outcome[T] {
	if err != nil {
		return Failed[T](err)
	}
	if internal.IsTypedNil(resp) {
		return Failed[T](ErrNoResponse)
	}

	code := resp.StatusCode()
	if !resp.IsSuccessful() {
		return Outcome[T]{
			Kind:       OutcomeError,
			Err:        &FailedResponseError{StatusCode: code, Detail: resp.Raw()},
			Reason:     ReasonFailedResponse,
			StatusCode: code,
		}
	}

	body, present := resp.Body()
	if !present {
		if set.Has(NullResponse) {
			return Outcome[T]{
				Kind:       OutcomeError,
				Err:        &NullDataError{Detail: resp.Raw()},
				Reason:     ReasonNullData,
				StatusCode: code,
			}
		}
		return Outcome[T]{Kind: OutcomeEmpty, Reason: ReasonNullBody, StatusCode: code}
	}

	if set.Has(EmptyCollection) && internal.IsEmptyCollection(body) {
		return Outcome[T]{
			Kind:       OutcomeError,
			Err:        &EmptyCollectionError{Detail: resp.Raw()},
			Reason:     ReasonEmptyCollection,
			StatusCode: code,
		}
	}

	return Outcome[T]{Kind: OutcomePayload, Payload: &body, Reason: ReasonSuccess, StatusCode: code}
}
