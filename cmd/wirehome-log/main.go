// Command wirehome-log views and analyzes wirehome-bus diagnostic logs.
//
// Log files are written by wirehome-bus when started with -fault-log (or
// diagnostics.file in the configuration).
//
// Usage:
//
//	wirehome-log <command> [flags] <file.wlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Every command accepts -uid, -category, -time-start and -time-end.
//
// Examples:
//
//	# View all faults of one subscriber, with panic stacks
//	wirehome-log view -uid lights -category fault -stack bus.wlog
//
//	# Export to JSONL
//	wirehome-log export -format jsonl bus.wlog
//
//	# Show statistics
//	wirehome-log stats bus.wlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wirehome/wirehome-go/cmd/wirehome-log/commands"
	"github.com/wirehome/wirehome-go/pkg/log"
)

const usage = `wirehome-log - Message Bus Log Analyzer

Usage:
  wirehome-log <command> [flags] <file.wlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "wirehome-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet creates a flag set with the shared filter flags.
func newFlagSet(name, summary string) (*flag.FlagSet, *commands.FilterOptions) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "wirehome-log %s - %s\n\nUsage:\n  wirehome-log %s [flags] <file.wlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}

	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.SubscriberUID, "uid", "", "Filter by subscriber uid")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (delivery, fault, state)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return fs, opts
}

// parse parses args and returns the log path and filter, exiting on error.
func parse(fs *flag.FlagSet, opts *commands.FilterOptions, args []string) (string, log.Filter) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := commands.BuildFilter(*opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return fs.Arg(0), filter
}

func runView(args []string) {
	fs, opts := newFlagSet("view", "View log file in human-readable format")
	stack := fs.Bool("stack", false, "Show goroutine stacks of panics")
	path, filter := parse(fs, opts, args)

	if err := commands.RunView(path, filter, *stack, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs, opts := newFlagSet("export", "Export log file to JSONL or CSV format")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path, filter := parse(fs, opts, args)

	if err := commands.RunExport(path, *format, *output, filter); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs, opts := newFlagSet("filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	path, filter := parse(fs, opts, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs, opts := newFlagSet("stats", "Show statistics about the log file")
	path, filter := parse(fs, opts, args)

	if err := commands.RunStats(path, filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
