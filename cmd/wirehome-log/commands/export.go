package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// exportRecord is the JSON shape of an exported event.
type exportRecord struct {
	Timestamp     string         `json:"timestamp"`
	SubscriberUID string         `json:"subscriber_uid,omitempty"`
	Category      string         `json:"category"`
	Kind          string         `json:"kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	Context       string         `json:"context,omitempty"`
	Stack         string         `json:"stack,omitempty"`
	Entity        string         `json:"entity,omitempty"`
	OldState      string         `json:"old_state,omitempty"`
	NewState      string         `json:"new_state,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	DurationUS    int64          `json:"duration_us,omitempty"`
	Message       map[string]any `json:"message,omitempty"`
}

func newExportRecord(e log.Event) exportRecord {
	r := exportRecord{
		Timestamp:     e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		SubscriberUID: e.SubscriberUID,
		Category:      e.Category.String(),
		DurationUS:    e.Duration.Microseconds(),
		Message:       e.Message,
	}
	if e.Category == log.CategoryFault {
		r.Kind = e.Kind.String()
	}
	if e.Error != nil {
		r.Error = e.Error.Message
		r.Context = e.Error.Context
		r.Stack = e.Error.Stack
	}
	if e.StateChange != nil {
		r.Entity = e.StateChange.Entity.String()
		r.OldState = e.StateChange.OldState
		r.NewState = e.StateChange.NewState
		r.Reason = e.StateChange.Reason
	}
	return r
}

// RunExport exports the matching events of path in format (jsonl or csv)
// to output, or to stdout when output is empty.
func RunExport(path, format, output string, filter log.Filter) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(newExportRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "subscriber_uid", "category", "kind", "error", "new_state", "duration_us"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		r := newExportRecord(event)
		row := []string{
			r.Timestamp,
			r.SubscriberUID,
			r.Category,
			r.Kind,
			r.Error,
			r.NewState,
			strconv.FormatInt(r.DurationUS, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
}
