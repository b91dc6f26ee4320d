// Package commands implements the wirehome-log CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event, showStack bool) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	label := event.Category.String()
	if event.Category == log.CategoryFault {
		label += "/" + event.Kind.String()
	}

	uid := event.SubscriberUID
	if uid == "" {
		uid = "-"
	}
	fmt.Fprintf(w, "%s [sub:%s] %s\n", ts, uid, label)

	if event.Error != nil {
		fmt.Fprintf(w, "  Error: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}
	if event.StateChange != nil {
		formatStateChangeDetails(w, event.StateChange)
	}
	if event.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(event.Duration))
	}
	if event.Message != nil {
		if data, err := json.Marshal(event.Message); err == nil {
			fmt.Fprintf(w, "  Message: %s\n", data)
		}
	}
	if showStack && event.Error != nil && event.Error.Stack != "" {
		fmt.Fprintln(w, "  Stack:")
		for _, line := range strings.Split(strings.TrimRight(event.Error.Stack, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}

	fmt.Fprintln(w)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// RunView prints the events of path that match filter.
func RunView(path string, filter log.Filter, showStack bool, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event, showStack)
	}
}
