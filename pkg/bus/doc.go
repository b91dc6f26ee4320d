// Package bus implements the wirehome in-process message bus.
//
// A Broker routes published messages to Subscribers whose Filter matches.
// Each Subscriber is a delivery unit: it runs its Handler for every message
// routed to it and keeps three counters (pending, processed, faulted) that
// operators can read at any time without blocking delivery.
//
// # Failure isolation
//
// Nothing a handler does escapes Subscriber.Deliver. A returned error or a
// panic is counted as a fault and reported once to the diagnostic sink
// (see package log). Cooperative cancellation (context.Canceled,
// context.DeadlineExceeded or an error wrapped with Cancelled) is counted as
// a fault but never reported. The only error Deliver returns is
// ErrInvalidArgument for a nil message.
//
// # Concurrency
//
// The broker may call Deliver on the same subscriber from many goroutines at
// once. Subscribers do not serialize handler calls; a handler that needs
// exclusive access to shared state must provide it itself. Counters are
// updated with atomic operations only and no lock is held while a handler
// runs.
package bus
