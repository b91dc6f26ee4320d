package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// Stats holds the delivery counters of a subscriber. Each field is read
// individually; the three values are not a consistent snapshot.
type Stats struct {
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Faulted   int64 `json:"faulted"`
}

// Subscriber is one registered interest on the bus: a uid, an immutable
// filter, a handler and the delivery counters.
type Subscriber struct {
	uid     string
	filter  Filter
	handler Handler
	logger  log.Logger

	pending   atomic.Int64
	processed atomic.Int64
	faulted   atomic.Int64
}

// NewSubscriber creates a subscriber. A nil logger disables fault reports.
func NewSubscriber(uid string, filter Filter, handler Handler, logger log.Logger) (*Subscriber, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: empty subscriber uid", ErrInvalidArgument)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidArgument)
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Subscriber{
		uid:     uid,
		filter:  filter,
		handler: handler,
		logger:  logger,
	}, nil
}

// UID returns the subscriber identifier.
func (s *Subscriber) UID() string {
	return s.uid
}

// Filter returns the subscription's match criteria.
func (s *Subscriber) Filter() Filter {
	return s.filter
}

// PendingCount returns the number of deliveries currently running.
func (s *Subscriber) PendingCount() int64 {
	return s.pending.Load()
}

// ProcessedCount returns the number of deliveries that completed normally.
func (s *Subscriber) ProcessedCount() int64 {
	return s.processed.Load()
}

// FaultedCount returns the number of deliveries that failed or were cancelled.
func (s *Subscriber) FaultedCount() int64 {
	return s.faulted.Load()
}

// Stats returns the current counter values.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Pending:   s.pending.Load(),
		Processed: s.processed.Load(),
		Faulted:   s.faulted.Load(),
	}
}

// Deliver runs the handler for msg on the calling goroutine.
//
// It returns ErrInvalidArgument for a nil message without touching any
// counter. Otherwise it always returns nil: handler errors and panics are
// counted and, unless they are cancellations, reported to the diagnostic
// sink exactly once.
func (s *Subscriber) Deliver(ctx context.Context, msg Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.pending.Add(1)
	defer s.pending.Add(-1)

	start := time.Now()
	err := s.invoke(ctx, msg)

	switch Classify(err) {
	case KindNone:
		s.processed.Add(1)
	case KindCancelled:
		s.faulted.Add(1)
	default:
		s.faulted.Add(1)
		s.reportFault(msg, err, time.Since(start))
	}
	return nil
}

// invoke calls the handler and converts a panic into a *PanicError.
func (s *Subscriber) invoke(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.handler.Process(ctx, msg)
}

func (s *Subscriber) reportFault(msg Message, err error, elapsed time.Duration) {
	data := &log.ErrorEventData{
		Message: err.Error(),
		Context: "Deliver",
	}
	kind := log.FaultError

	var perr *PanicError
	if errors.As(err, &perr) {
		kind = log.FaultPanic
		data.Stack = string(perr.Stack)
	}

	s.logger.Log(log.Event{
		Timestamp:     time.Now(),
		SubscriberUID: s.uid,
		Category:      log.CategoryFault,
		Kind:          kind,
		Message:       msg,
		Error:         data,
		Duration:      elapsed,
	})
}
