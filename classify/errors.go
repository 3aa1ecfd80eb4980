package classify

import (
	"errors"
	"strconv"
)

var (
	// ErrFailedResponse matches every *FailedResponseError.
	ErrFailedResponse = errors.New("simplecall: response not successful")
	// ErrNullData matches every *NullDataError.
	ErrNullData = errors.New("simplecall: response body is null")
	// ErrEmptyCollection matches every *EmptyCollectionError.
	ErrEmptyCollection = errors.New("simplecall: response body is an empty collection")
	// ErrNoResponse is reported when a transport returns neither a response nor an error.
	ErrNoResponse = errors.New("simplecall: transport returned no response")
)

// FailedResponseError reports a response with a non-success status.
type FailedResponseError struct {
	StatusCode int
	Detail     string
}

func (e *FailedResponseError) Error() string {
	msg := "simplecall: request failed with status " + strconv.Itoa(e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *FailedResponseError) Is(target error) bool { return target == ErrFailedResponse }

// NullDataError reports a successful response without a body while the
// NullResponse condition is active.
type NullDataError struct {
	Detail string
}

func (e *NullDataError) Error() string {
	if e.Detail == "" {
		return ErrNullData.Error()
	}
	return "simplecall: null body in response: " + e.Detail
}

func (e *NullDataError) Is(target error) bool { return target == ErrNullData }

// EmptyCollectionError reports a successful response whose body is an empty
// collection while the EmptyCollection condition is active.
type EmptyCollectionError struct {
	Detail string
}

func (e *EmptyCollectionError) Error() string {
	if e.Detail == "" {
		return ErrEmptyCollection.Error()
	}
	return "simplecall: empty collection in response: " + e.Detail
}

func (e *EmptyCollectionError) Is(target error) bool { return target == ErrEmptyCollection }

// StatusCode extracts the status code from err if it is a *FailedResponseError.
func StatusCode(err error) (int, bool) {
	var fe *FailedResponseError
	if errors.As(err, &fe) {
		return fe.StatusCode, true
	}
	return 0, false
}
