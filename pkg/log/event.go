package log

import (
	"strings"
	"time"
)

// Event is a diagnostic record emitted by the message bus.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SubscriberUID identifies the subscription the event belongs to.
	SubscriberUID string `cbor:"2,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Kind is the failure classification for fault events.
	Kind FaultKind `cbor:"4,keyasint,omitempty"`

	// Message is the bus message being delivered, if any.
	Message map[string]any `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Error       *ErrorEventData   `cbor:"6,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"7,keyasint,omitempty"`

	// Duration is how long the handler ran, if measured.
	Duration time.Duration `cbor:"8,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryDelivery traces a completed delivery.
	CategoryDelivery Category = 0
	// CategoryFault reports a handler failure.
	CategoryFault Category = 1
	// CategoryState reports a subscription or dispatcher state change.
	CategoryState Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryDelivery:
		return "DELIVERY"
	case CategoryFault:
		return "FAULT"
	case CategoryState:
		return "STATE"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as produced by String (case-insensitive).
func ParseCategory(s string) (Category, bool) {
	switch strings.ToUpper(s) {
	case "DELIVERY":
		return CategoryDelivery, true
	case "FAULT":
		return CategoryFault, true
	case "STATE":
		return CategoryState, true
	}
	return 0, false
}

// FaultKind distinguishes the reason a fault event was raised.
type FaultKind uint8

const (
	// FaultNone is the zero value for non-fault events.
	FaultNone FaultKind = 0
	// FaultError is a handler returning a non-cancellation error.
	FaultError FaultKind = 1
	// FaultPanic is a handler that panicked.
	FaultPanic FaultKind = 2
)

// String returns the fault kind name.
func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "NONE"
	case FaultError:
		return "ERROR"
	case FaultPanic:
		return "PANIC"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData carries the failure detail of a fault event.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes where the error happened (e.g. "Deliver").
	Context string `cbor:"2,keyasint,omitempty"`

	// Stack is the goroutine stack for recovered panics.
	Stack string `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	// Entity is what changed state.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (empty for initial).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason is an optional explanation.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity identifies what changed state.
type StateEntity uint8

const (
	// StateEntitySubscription is a subscription registration.
	StateEntitySubscription StateEntity = 0
	// StateEntityDispatcher is the broker's queued dispatcher.
	StateEntityDispatcher StateEntity = 1
)

// String returns the entity name.
func (e StateEntity) String() string {
	switch e {
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	case StateEntityDispatcher:
		return "DISPATCHER"
	default:
		return "UNKNOWN"
	}
}
