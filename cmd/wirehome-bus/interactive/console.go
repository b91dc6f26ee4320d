// Package interactive provides the interactive command-line interface
// for wirehome-bus.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/faultstore"
)

// Console handles interactive mode for wirehome-bus.
type Console struct {
	broker *bus.Broker
	faults *faultstore.Store
	rl     *readline.Instance
	out    io.Writer
}

// New creates a console on the terminal. The console is usable once Attach
// has been called; Stdout is available immediately so logging can be set up
// before the broker exists.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bus> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Attach binds the console to a broker and an optional fault journal.
func (c *Console) Attach(broker *bus.Broker, faults *faultstore.Store) {
	c.broker = broker
	c.faults = faults
}

func newConsole(broker *bus.Broker, faults *faultstore.Store, out io.Writer) *Console {
	return &Console{broker: broker, faults: faults, out: out}
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run starts the interactive command loop. It calls cancel when the user
// quits or closes the input.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "publish", "pub", "p":
		c.cmdPublish(ctx, args)
	case "enqueue", "enq":
		c.cmdEnqueue(args)
	case "subscribe", "sub":
		c.cmdSubscribe(args)
	case "unsubscribe", "unsub":
		c.cmdUnsubscribe(args)
	case "subs", "ls":
		c.cmdSubs()
	case "stats":
		c.cmdStats()
	case "faults", "f":
		c.cmdFaults(args)
	case "reset-faults":
		c.cmdResetFaults()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Message Bus Commands:
  publish k=v ...      - Publish a message and wait for delivery
  enqueue k=v ...      - Queue a message for background delivery
  subscribe k=v ...    - Print messages matching the filter (v may be *)
  unsubscribe <uid>    - Remove a subscriber
  subs                 - List subscribers with their counters
  stats                - Show broker statistics
  faults [uid]         - Show recent faults
  reset-faults         - Clear the fault journal
  help                 - Show this help
  quit                 - Exit`)
}

// parseMessage turns k=v arguments into a message with string values.
func parseMessage(args []string) (bus.Message, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: publish key=value ...")
	}
	msg := make(bus.Message, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid pair %q (want key=value)", a)
		}
		msg[k] = v
	}
	return msg, nil
}

func (c *Console) cmdPublish(ctx context.Context, args []string) {
	msg, err := parseMessage(args)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	n, err := c.broker.Publish(ctx, msg)
	if err != nil {
		fmt.Fprintf(c.out, "Publish failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Delivered to %d subscriber(s)\n", n)
}

func (c *Console) cmdEnqueue(args []string) {
	msg, err := parseMessage(args)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}
	if err := c.broker.Enqueue(msg); err != nil {
		fmt.Fprintf(c.out, "Enqueue failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Queued")
}

func (c *Console) cmdSubscribe(args []string) {
	filter, err := bus.ParseFilter(args)
	if err != nil {
		fmt.Fprintln(c.out, err)
		return
	}

	uid := uuid.NewString()
	_, err = c.broker.SubscribeWithUID(uid, filter, bus.HandlerFunc(func(_ context.Context, msg bus.Message) error {
		fmt.Fprintf(c.out, "[%s] %s\n", uid, formatMessage(msg))
		return nil
	}))
	if err != nil {
		fmt.Fprintf(c.out, "Subscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Subscribed %s (%s)\n", uid, filter)
}

func (c *Console) cmdUnsubscribe(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "usage: unsubscribe <uid>")
		return
	}
	if err := c.broker.Unsubscribe(args[0]); err != nil {
		fmt.Fprintf(c.out, "Unsubscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Unsubscribed %s\n", args[0])
}

func (c *Console) cmdSubs() {
	subs := c.broker.Subscribers()
	if len(subs) == 0 {
		fmt.Fprintln(c.out, "No subscribers")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tFILTER\tPENDING\tPROCESSED\tFAULTED")
	for _, sub := range subs {
		st := sub.Stats()
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", sub.UID(), sub.Filter(), st.Pending, st.Processed, st.Faulted)
	}
	tw.Flush()
}

func (c *Console) cmdStats() {
	fmt.Fprintf(c.out, "Subscribers: %d\n", c.broker.Count())
	fmt.Fprintf(c.out, "Published:   %d\n", c.broker.PublishedCount())
	fmt.Fprintf(c.out, "Dropped:     %d\n", c.broker.DroppedCount())
	fmt.Fprintf(c.out, "Dispatching: %t\n", c.broker.Running())
}

func (c *Console) cmdFaults(args []string) {
	if c.faults == nil {
		fmt.Fprintln(c.out, "Fault journal disabled (start with -fault-db)")
		return
	}

	var (
		faults []faultstore.Fault
		err    error
	)
	if len(args) > 0 {
		faults, err = c.faults.ForSubscriber(args[0], 20)
	} else {
		faults, err = c.faults.Recent(20)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Failed to read faults: %v\n", err)
		return
	}
	if len(faults) == 0 {
		fmt.Fprintln(c.out, "No faults")
		return
	}
	for _, f := range faults {
		fmt.Fprintf(c.out, "%s  %-36s  %-5s  %s\n",
			f.OccurredAt.Format("15:04:05.000"), f.SubscriberUID, f.Kind, f.Error)
	}
}

func (c *Console) cmdResetFaults() {
	if c.faults == nil {
		fmt.Fprintln(c.out, "Fault journal disabled (start with -fault-db)")
		return
	}
	if err := c.faults.Reset(); err != nil {
		fmt.Fprintf(c.out, "Reset failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Fault journal cleared")
}

func formatMessage(msg bus.Message) string {
	keys := make([]string, 0, len(msg))
	for k := range msg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, msg[k])
	}
	return strings.Join(parts, " ")
}
