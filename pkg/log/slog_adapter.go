package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes diagnostic events to an slog.Logger.
// Fault events are written at Error level, everything else at Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
// A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.SubscriberUID != "" {
		attrs = append(attrs, slog.String("subscriber", event.SubscriberUID))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}

	level := slog.LevelDebug
	msg := "bus event"

	switch {
	case event.Error != nil:
		level = slog.LevelError
		msg = "Error while processing bus message"
		attrs = append(attrs,
			slog.String("kind", event.Kind.String()),
			slog.String("error", event.Error.Message),
		)
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("context", event.Error.Context))
		}
		if event.Error.Stack != "" {
			attrs = append(attrs, slog.String("stack", event.Error.Stack))
		}
	case event.StateChange != nil:
		msg = "bus state change"
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
