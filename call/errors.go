package call

import (
	"errors"
	"fmt"
)

var (
	// ErrNilHandle is returned when a batch is given a nil handle.
	ErrNilHandle = errors.New("simplecall: nil handle")

	// ErrDuplicateHandle is returned when the same handle appears twice in a batch.
	ErrDuplicateHandle = errors.New("simplecall: duplicate handle")
)

// HandleError reports an invalid handle at a position of a batch.
type HandleError struct {
	Index int
	Err   error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("%v at index %d", e.Err, e.Index)
}

func (e *HandleError) Unwrap() error { return e.Err }

// PanicError describes a panic recovered from a user callback.
type PanicError struct {
	Component string
	ID        string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("simplecall: panic in %s for %s: %v", e.Component, e.ID, e.Value)
}
