package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// FilterOptions holds the event selection flags shared by all commands.
type FilterOptions struct {
	SubscriberUID string
	Category      string
	TimeStart     string
	TimeEnd       string
}

// BuildFilter converts command-line options into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{SubscriberUID: opts.SubscriberUID}

	if opts.Category != "" {
		c, ok := log.ParseCategory(opts.Category)
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid category: %s (must be delivery, fault, or state)", opts.Category)
		}
		filter.Category = &c
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

// RunFilter copies the events of path matching filter into a new log file
// and returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	return count, nil
}
