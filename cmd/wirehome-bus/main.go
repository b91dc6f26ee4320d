// Command wirehome-bus runs the wirehome message bus hub.
//
// It offers:
//   - a message broker with per-subscriber delivery counters
//   - a REST API for publishing messages and inspecting subscribers
//   - optional CBOR diagnostic log and SQLite fault journal
//   - optional mDNS advertising of the API (_wirehome._tcp)
//   - an interactive console
//
// Usage:
//
//	wirehome-bus [flags]
//
// Flags:
//
//	-config string     YAML configuration file
//	-listen string     HTTP listen address (default ":8080")
//	-fault-log string  CBOR diagnostic log file
//	-fault-db string   SQLite fault journal
//	-mdns              Advertise the hub via mDNS
//	-name string       mDNS instance name (default "wirehome")
//	-state string      JSON file for subscriptions created through the API
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-interactive       Start the interactive console
//	-discover duration Browse for hubs for the given time and exit
//
// Examples:
//
//	# Start a hub with a fault journal
//	wirehome-bus -fault-db ./faults.db
//
//	# Start from a configuration file and open the console
//	wirehome-bus -config hub.yaml -interactive
//
//	# List hubs on the network
//	wirehome-bus -discover 3s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wirehome/wirehome-go/cmd/wirehome-bus/interactive"
	"github.com/wirehome/wirehome-go/pkg/bus"
	"github.com/wirehome/wirehome-go/pkg/config"
	"github.com/wirehome/wirehome-go/pkg/discovery"
	"github.com/wirehome/wirehome-go/pkg/faultstore"
	"github.com/wirehome/wirehome-go/pkg/handlers"
	"github.com/wirehome/wirehome-go/pkg/log"
	"github.com/wirehome/wirehome-go/pkg/persistence"
)

// Version information - set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "dev"
	GitCommit = "unknown"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	listen      = flag.String("listen", config.DefaultListenAddress, "HTTP listen address (empty disables the API)")
	faultLog    = flag.String("fault-log", "", "CBOR diagnostic log file")
	faultDB     = flag.String("fault-db", "", "SQLite fault journal (\":memory:\" for in-memory)")
	mdns        = flag.Bool("mdns", false, "Advertise the hub via mDNS")
	name        = flag.String("name", config.DefaultInstanceName, "mDNS instance name")
	logLevel    = flag.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	statePath   = flag.String("state", "", "JSON file for subscriptions created through the API")
	interact    = flag.Bool("interactive", false, "Start the interactive console")
	discover    = flag.Duration("discover", 0, "Browse for hubs for the given time and exit")
	showVersion = flag.Bool("version", false, "Show version information")
)

// subscriberUpdateInterval is how often the mDNS subscriber count is refreshed.
const subscriberUpdateInterval = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if *showVersion {
		fmt.Printf("wirehome-bus %s (built %s, commit %s)\n", Version, BuildDate, GitCommit)
		return 0
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *discover > 0 {
		return runDiscover(*discover, cfg.Discovery.Interface)
	}

	var console *interactive.Console
	var logOut io.Writer = os.Stderr
	if *interact {
		console, err = interactive.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		logOut = console.Stdout()
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Diagnostic sinks
	sinks := []log.Logger{log.NewSlogAdapter(logger)}
	if cfg.Diagnostics.File != "" {
		fl, err := log.NewFileLogger(cfg.Diagnostics.File)
		if err != nil {
			logger.Error("Failed to open diagnostic log", "path", cfg.Diagnostics.File, "error", err)
			return 1
		}
		defer fl.Close()
		sinks = append(sinks, fl)
		logger.Info("Diagnostic log enabled", "path", fl.Path())
	}
	var faults *faultstore.Store
	if cfg.Diagnostics.Database != "" {
		faults, err = faultstore.Open(cfg.Diagnostics.Database)
		if err != nil {
			logger.Error("Failed to open fault journal", "path", cfg.Diagnostics.Database, "error", err)
			return 1
		}
		defer faults.Close()
		sinks = append(sinks, faults)
		logger.Info("Fault journal enabled", "path", cfg.Diagnostics.Database)
	}

	broker := bus.NewBroker(cfg.Broker, log.NewMultiLogger(sinks...))
	if err := handlers.Subscribe(broker, cfg.Subscriptions, logger, nil); err != nil {
		logger.Error("Failed to create configured subscriptions", "error", err)
		return 1
	}
	var state *persistence.HubStateStore
	if cfg.StateFile != "" {
		state = persistence.NewHubStateStore(cfg.StateFile)
		if err := restoreSubscriptions(broker, state, logger); err != nil {
			logger.Error("Failed to restore subscriptions", "path", cfg.StateFile, "error", err)
			return 1
		}
	}
	broker.Start()
	defer broker.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// HTTP API
	var srv *Server
	if cfg.HTTP.ListenAddress != "" {
		ln, err := net.Listen("tcp", cfg.HTTP.ListenAddress)
		if err != nil {
			logger.Error("Failed to listen", "addr", cfg.HTTP.ListenAddress, "error", err)
			return 1
		}
		srv = NewServer(ServerConfig{Addr: ln.Addr().String(), Version: Version}, broker, faults, logger)
		if state != nil {
			srv.SetStateStore(state)
		}
		go func() {
			if err := srv.Serve(ln); err != nil {
				logger.Error("HTTP server failed", "error", err)
				cancel()
			}
		}()
		logger.Info("HTTP API listening", "addr", ln.Addr().String())

		if cfg.Discovery.Enabled {
			adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: cfg.Discovery.Interface})
			if err := advertise(ctx, adv, cfg.Discovery.Instance, ln.Addr(), broker, logger); err != nil {
				logger.Warn("mDNS advertising failed", "error", err)
			} else {
				defer adv.Stop()
			}
		}
	}

	logger.Info("Message bus running",
		"subscribers", broker.Count(),
		"workers", broker.Config().Workers,
		"queue", broker.Config().QueueSize)

	if console != nil {
		console.Attach(broker, faults)
		go console.Run(ctx, cancel)
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown incomplete", "error", err)
		}
	}
	return 0
}

// loadConfig reads the configuration file (if any) and applies flags that
// were set explicitly.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return config.Config{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.HTTP.ListenAddress = *listen
		case "fault-log":
			cfg.Diagnostics.File = *faultLog
		case "fault-db":
			cfg.Diagnostics.Database = *faultDB
		case "mdns":
			cfg.Discovery.Enabled = *mdns
		case "name":
			cfg.Discovery.Instance = *name
		case "log-level":
			cfg.LogLevel = *logLevel
		case "state":
			cfg.StateFile = *statePath
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// restoreSubscriptions recreates the subscriptions recorded in the state
// file. Records whose uid is already taken by a configured subscription are
// skipped.
func restoreSubscriptions(broker *bus.Broker, state *persistence.HubStateStore, logger *slog.Logger) error {
	hs, err := state.Load()
	if err != nil {
		return err
	}

	restored := 0
	for _, rec := range hs.Subscriptions {
		sc := rec.Config()
		h, err := handlers.FromConfig(sc, logger, nil)
		if err != nil {
			logger.Warn("Skipping stored subscription", "uid", rec.UID, "error", err)
			continue
		}
		if _, err := broker.SubscribeWithUID(sc.UID, bus.NewFilter(sc.Filter), h); err != nil {
			logger.Warn("Skipping stored subscription", "uid", rec.UID, "error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		logger.Info("Restored subscriptions", "count", restored, "path", state.Path())
	}
	return nil
}

// advertise announces the hub and keeps the subscriber count current.
func advertise(ctx context.Context, adv discovery.Advertiser, instance string, addr net.Addr, broker *bus.Broker, logger *slog.Logger) error {
	var port uint16
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = uint16(tcp.Port)
	}

	info := &discovery.HubInfo{
		InstanceName:   instance,
		Port:           port,
		Subscribers:    broker.Count(),
		HasSubscribers: true,
	}
	if err := adv.Advertise(ctx, info); err != nil {
		return err
	}
	logger.Info("Advertising hub", "instance", instance, "service", discovery.ServiceType, "port", port)

	go func() {
		ticker := time.NewTicker(subscriberUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info.Subscribers = broker.Count()
				if err := adv.Update(info); err != nil {
					logger.Debug("mDNS update skipped", "error", err)
				}
			}
		}
	}()
	return nil
}

func runDiscover(timeout time.Duration, iface string) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: iface})
	hubs, err := browser.BrowseHubs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	found := 0
	for hub := range hubs {
		found++
		fmt.Printf("%-24s %s:%d  %v  api=%s v%s subscribers=%d\n",
			hub.InstanceName, hub.Host, hub.Port, hub.Addresses, hub.Path, hub.Version, hub.Subscribers)
	}
	if found == 0 {
		fmt.Println("No hubs found")
	}
	return 0
}
