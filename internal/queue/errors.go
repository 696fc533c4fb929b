package queue

import (
	"errors"
	"fmt"
)

var (
	ErrInitialization = errors.New("queue: initialization failed")
	ErrRange          = errors.New("queue: sequence number out of range")
	ErrClosed         = errors.New("queue: closed")
)

// InitializationError is returned by New when no native queue handle could
// be created.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("queue: failed to create native queue handle: %v", e.Err)
}

func (e *InitializationError) Unwrap() []error {
	return []error{ErrInitialization, e.Err}
}

// RangeError reports a sequence number the native layer cannot represent.
type RangeError struct {
	Value string
	Max   uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("queue: sequence number %s exceeds native maximum %d", e.Value, e.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrRange
}
