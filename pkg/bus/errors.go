package bus

import "errors"

// Bus errors.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateUID       = errors.New("subscriber uid already registered")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrResourceExhausted  = errors.New("maximum subscribers reached")
	ErrNotRunning         = errors.New("dispatcher not running")
	ErrQueueFull          = errors.New("dispatch queue full")
)
