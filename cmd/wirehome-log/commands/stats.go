package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wirehome/wirehome-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	FaultsByKind     map[log.FaultKind]int
	Subscribers      map[string]*SubscriberStats
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SubscriberStats holds statistics for a single subscriber.
type SubscriberStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Faults    int
	LastError string
}

// CollectStats reads the events of path matching filter.
func CollectStats(path string, filter log.Filter) (*Stats, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		FaultsByKind:     make(map[log.FaultKind]int),
		Subscribers:      make(map[string]*SubscriberStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.SubscriberUID == "" {
			continue
		}
		sub, ok := stats.Subscribers[event.SubscriberUID]
		if !ok {
			sub = &SubscriberStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Subscribers[event.SubscriberUID] = sub
		}
		sub.Events++
		if event.Timestamp.After(sub.LastSeen) {
			sub.LastSeen = event.Timestamp
		}
		if event.Category == log.CategoryFault {
			stats.FaultsByKind[event.Kind]++
			sub.Faults++
			if event.Error != nil {
				sub.LastError = event.Error.Message
			}
		}
	}
	return stats, nil
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats, err := CollectStats(path, filter)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Message Bus Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryDelivery, log.CategoryFault, log.CategoryState} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.FaultsByKind) > 0 {
		fmt.Fprintln(w, "Faults by Kind:")
		for _, kind := range []log.FaultKind{log.FaultError, log.FaultPanic} {
			if count := stats.FaultsByKind[kind]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", kind.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Subscribers: %d\n", len(stats.Subscribers))
	if len(stats.Subscribers) == 0 {
		return
	}

	// Most faults first, then by uid.
	uids := make([]string, 0, len(stats.Subscribers))
	for uid := range stats.Subscribers {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool {
		a, b := stats.Subscribers[uids[i]], stats.Subscribers[uids[j]]
		if a.Faults != b.Faults {
			return a.Faults > b.Faults
		}
		return uids[i] < uids[j]
	})

	fmt.Fprintln(w)
	for _, uid := range uids {
		s := stats.Subscribers[uid]
		fmt.Fprintf(w, "  [%s] %d events, %d faults\n", uid, s.Events, s.Faults)
		if s.LastError != "" {
			fmt.Fprintf(w, "           Last error: %s\n", s.LastError)
		}
	}
}
