package bgtask

import (
	"errors"
	"fmt"
)

// FailureCode classifies why a worker stopped without exhausting its generator.
type FailureCode uint8

const (
	// FailureCanceled marks a worker that observed the termination flag.
	// It never reaches callers as an error.
	FailureCanceled FailureCode = iota + 1
	// FailureError marks a generator that yielded a non-nil error.
	FailureError
	// FailurePanic marks a generator that panicked.
	FailurePanic
)

// String returns the string representation of the code.
func (c FailureCode) String() string {
	switch c {
	case FailureCanceled:
		return "canceled"
	case FailureError:
		return "error"
	case FailurePanic:
		return "panic"
	default:
		return "unknown"
	}
}

var (
	// ErrNilFactory is returned by New when the factory is nil.
	ErrNilFactory = errors.New("bgtask: nil factory")

	// ErrNilGenerator is returned by New when the factory returns a nil generator.
	ErrNilGenerator = errors.New("bgtask: nil generator")

	// ErrWorkerTimeout is returned by Close when the worker is still running
	// after the close timeout.
	ErrWorkerTimeout = errors.New("bgtask: worker did not exit in time")

	errCanceled = errors.New("bgtask: task was canceled")
)

// WorkerError is a failure raised by a generator, reconstructed in the
// caller's goroutine from the failure message the worker sent.
type WorkerError struct {
	Task    string
	Code    FailureCode
	Message string
	Err     error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("bgtask: task %q failed (%s): %s", e.Task, e.Code, e.Message)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

type messageKind uint8

const (
	kindItem messageKind = iota + 1
	kindFailure
	kindEnd
)

// message is the only thing that crosses from worker to controller.
// Exactly one failure or end message is sent per task and nothing follows it.
type message[T any] struct {
	kind  messageKind
	value T
	code  FailureCode
	text  string
	cause error
}

func itemMessage[T any](v T) message[T] {
	return message[T]{kind: kindItem, value: v}
}

func endMessage[T any]() message[T] {
	return message[T]{kind: kindEnd}
}

func failureMessage[T any](code FailureCode, err error) message[T] {
	return message[T]{
		kind:  kindFailure,
		code:  code,
		text:  err.Error(),
		cause: err,
	}
}

func (m message[T]) terminal() bool {
	return m.kind != kindItem
}

// workerError decodes a failure message into the error surfaced by Fetch.
func (m message[T]) workerError(task string) *WorkerError {
	return &WorkerError{Task: task, Code: m.code, Message: m.text, Err: m.cause}
}
