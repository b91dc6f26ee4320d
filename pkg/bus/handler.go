package bus

import (
	"context"
	"errors"
	"fmt"
)

// Handler processes messages delivered to a subscription.
//
// Process runs synchronously on the goroutine that called Deliver. Returning
// an error marks the delivery as faulted; returning an error classified as
// KindCancelled marks it faulted without a diagnostic report.
type Handler interface {
	Process(ctx context.Context, msg Message) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) error

// Process calls f(ctx, msg).
func (f HandlerFunc) Process(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// ErrorKind classifies the outcome of a handler call.
type ErrorKind uint8

const (
	// KindNone means the handler returned normally.
	KindNone ErrorKind = iota

	// KindCancelled means the handler abandoned the message cooperatively.
	KindCancelled

	// KindFault means the handler failed and the failure must be reported.
	KindFault
)

// String returns a human-readable kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindCancelled:
		return "CANCELLED"
	case KindFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// ErrCancelled marks a cooperative cancellation raised by a handler.
var ErrCancelled = errors.New("handler cancelled")

// Cancelled wraps err so that Classify reports KindCancelled for it.
// A nil err yields ErrCancelled.
func Cancelled(err error) error {
	if err == nil {
		return ErrCancelled
	}
	return &cancelledError{err: err}
}

type cancelledError struct {
	err error
}

func (e *cancelledError) Error() string {
	return "cancelled: " + e.err.Error()
}

func (e *cancelledError) Unwrap() []error {
	return []error{ErrCancelled, e.err}
}

// Classify maps a handler result onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindFault
	}
}

// PanicError is the fault recorded when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error, so a handler
// that panics with context.Canceled is still treated as cancelled.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
