package log

// Logger is the diagnostic sink the bus reports to.
// Pass nil or NoopLogger to disable reporting.
type Logger interface {
	// Log records an event. Implementations must be thread-safe because
	// subscribers report from whatever goroutine ran the handler.
	Log(event Event)
}

// NoopLogger discards all events.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// LoggerFunc adapts an ordinary function to the Logger interface.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// Compile-time interface satisfaction check.
var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
