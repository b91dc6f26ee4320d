// Package log provides the diagnostic event sink for the wirehome message bus.
//
// Subscribers report handler faults and the broker reports lifecycle changes
// as Events. The package is separate from operational logging (slog):
// diagnostic capture is a machine-readable trace that operators inspect
// after the fact.
//
// # Basic Usage
//
// Applications configure the sink by providing a Logger implementation:
//
//	// For development: log to console via slog
//	sink := log.NewSlogAdapter(slog.Default())
//
//	// For production: append to a binary file
//	sink, _ := log.NewFileLogger("/var/log/wirehome/bus.wlog")
//
//	// Both: use MultiLogger
//	sink := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Categories
//
//   - Fault: a subscriber's handler failed (one event per failure)
//   - Delivery: optional per-message trace
//   - State: subscription registered/removed, dispatcher started/stopped
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys
// (.wlog extension). The wirehome-log CLI provides viewing, statistics
// and export.
package log
