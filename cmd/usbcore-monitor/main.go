// Command usbcore-monitor runs the USB driver attachment engine against
// a live event source and journals every attachment decision.
//
// The monitor wires a bus event source (simulated or netlink), the
// driver registry with the bundled reference drivers, and the hotplug
// orchestrator into one process:
//   - CLI argument parsing with optional YAML configuration file
//   - Scripted device playback on the simulated bus
//   - Interactive command shell for plugging and inspecting devices
//   - Attachment journal (CBOR file, slog, optional MQTT sink)
//
// Usage:
//
//	usbcore-monitor [flags]
//
// Flags:
//
//	-config string         Configuration file path (YAML)
//	-source string         Event source: sim, netlink (default "sim")
//	-script string         Device script to play on the sim source (YAML)
//	-journal string        Journal file path (CBOR format)
//	-workers int           Orchestrator worker count (default 1)
//	-queue-depth int       Per-worker event queue depth (default 64)
//	-probe-timeout duration  Per-probe timeout (default 5s)
//	-mqtt-broker string    MQTT broker URL for the diagnostics sink
//	-log-level string      Log level: debug, info, warn, error (default "info")
//	-log-format string     Log format: text, json (default "text")
//	-interactive           Enable interactive command mode
//
// Examples:
//
//	# Play a device script against the reference drivers
//	usbcore-monitor -script demo.yaml -journal demo.ulog
//
//	# Interactive session with verbose logging
//	usbcore-monitor -interactive -log-level debug
//
//	# Watch the real bus (linux) and publish decisions over MQTT
//	usbcore-monitor -source netlink -mqtt-broker tcp://127.0.0.1:1883
//
// Interactive Commands:
//
//	plug <preset|vid:pid> <bus>:<port> - Plug a simulated device
//	unplug <device-id>                 - Unplug a simulated device
//	reset <bus>                        - Reset a simulated bus
//	lsdev                              - List known devices
//	info <device-id>                   - Show full detail for one device
//	lsdrv                              - List registered drivers
//	rescan <device-id>                 - Re-run matching for a device
//	detach-driver <name>               - Detach a driver from all devices
//	stats                              - Show monitor status
//	quit                               - Exit the monitor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/usbcore-project/usbcore-go/cmd/usbcore-monitor/interactive"
	"github.com/usbcore-project/usbcore-go/pkg/bus"
	"github.com/usbcore-project/usbcore-go/pkg/bus/simbus"
	"github.com/usbcore-project/usbcore-go/pkg/examples"
	"github.com/usbcore-project/usbcore-go/pkg/hotplug"
	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/mqttlog"
	"github.com/usbcore-project/usbcore-go/pkg/registry"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Config holds the monitor configuration.
// It implements interactive.MonitorConfig.
type Config struct {
	ConfigFile   string
	Source       string
	Script       string
	Journal      string
	Workers      int
	QueueDepth   int
	ProbeTimeout time.Duration
	MQTTBroker   string
	LogLevel     string
	LogFormat    string
	Interactive  bool

	// MQTT sink settings beyond the broker URL (config file only).
	MQTT mqttlog.Config
}

// SourceName implements interactive.MonitorConfig.
func (c *Config) SourceName() string {
	return c.Source
}

// JournalPath implements interactive.MonitorConfig.
func (c *Config) JournalPath() string {
	return c.Journal
}

var config Config

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Source, "source", "sim", "Event source: sim, netlink")
	flag.StringVar(&config.Script, "script", "", "Device script to play on the sim source (YAML)")
	flag.StringVar(&config.Journal, "journal", "", "Journal file path (CBOR format)")
	flag.IntVar(&config.Workers, "workers", 1, "Orchestrator worker count")
	flag.IntVar(&config.QueueDepth, "queue-depth", 64, "Per-worker event queue depth")
	flag.DurationVar(&config.ProbeTimeout, "probe-timeout", 5*time.Second, "Per-probe timeout")
	flag.StringVar(&config.MQTTBroker, "mqtt-broker", "", "MQTT broker URL for the diagnostics sink")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFormat, "log-format", "text", "Log format: text, json")
	flag.BoolVar(&config.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	if config.ConfigFile != "" {
		if err := applyConfigFile(&config, config.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Log output goes through a switchable sink so interactive mode can
	// later route it through readline without rebuilding the handler.
	sink := &switchWriter{w: os.Stderr}
	logger, err := buildLogger(sink, config.LogLevel, config.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("usbcore monitor starting",
		"source", config.Source,
		"workers", config.Workers,
	)

	journal, closeJournal, err := buildJournal(logger)
	if err != nil {
		logger.Error("journal setup failed", "err", err)
		os.Exit(1)
	}
	defer closeJournal()

	reg := registry.New()
	reg.SetJournal(journal)
	registerDrivers(reg, logger)

	orch, err := hotplug.New(reg, hotplug.Config{
		Workers:      config.Workers,
		QueueDepth:   config.QueueDepth,
		ProbeTimeout: config.ProbeTimeout,
		Logger:       logger,
		Journal:      journal,
	})
	if err != nil {
		logger.Error("orchestrator setup failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		logger.Error("orchestrator start failed", "err", err)
		os.Exit(1)
	}

	src, sim, err := buildSource(logger)
	if err != nil {
		logger.Error("source setup failed", "err", err)
		os.Exit(1)
	}

	go func() {
		if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("source stopped", "err", err)
			cancel()
		}
	}()

	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- hotplug.Pump(ctx, src, orch)
	}()

	if config.Interactive {
		shell, err := interactive.New(orch, sim, &config)
		if err != nil {
			logger.Error("interactive setup failed", "err", err)
			os.Exit(1)
		}
		// Route log output through readline to keep the prompt intact.
		sink.SetOutput(shell.Stdout())
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
		// Cancelled by the interactive quit command or a source failure.
	case err := <-pumpErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event pump failed", "err", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if err := src.Close(); err != nil {
		logger.Warn("source close failed", "err", err)
	}
	if err := orch.Stop(); err != nil {
		logger.Warn("orchestrator stop failed", "err", err)
	}

	logger.Info("goodbye")
}

// buildLogger creates the slog logger for the selected level and format.
func buildLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s (use: debug, info, warn, error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s (use: text, json)", format)
	}
}

// buildJournal assembles the journal from the configured sinks. The
// returned func closes whichever sinks hold resources.
func buildJournal(logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	var closers []func()

	if config.Journal != "" {
		fl, err := log.NewFileLogger(config.Journal)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
		closers = append(closers, func() {
			if err := fl.Close(); err != nil {
				logger.Warn("journal close failed", "err", err)
			}
		})
		logger.Info("journaling to file", "path", config.Journal)
	}

	sinks = append(sinks, log.NewSlogAdapter(logger))

	if config.MQTTBroker != "" {
		mc := config.MQTT
		if mc.BrokerURL == "" {
			mc = mqttlog.DefaultConfig()
		}
		mc.BrokerURL = config.MQTTBroker
		mc.Logger = logger
		ms, err := mqttlog.Connect(mc)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, ms)
		closers = append(closers, func() { ms.Close() })
		logger.Info("publishing journal to mqtt", "broker", config.MQTTBroker)
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return log.NewMultiLogger(sinks...), closeAll, nil
}

// registerDrivers installs the bundled reference drivers. The vendor
// tool targets SanDisk with a single device slot, so plugging two
// SanDisk drives demonstrates specificity ordering and the fall-through
// to the class driver when the slot is taken.
func registerDrivers(reg *registry.Registry, logger *slog.Logger) {
	drivers := []usb.Driver{
		examples.NewMassStorageDriver(),
		examples.NewHIDDriver(),
		examples.NewVendorToolDriver(examples.VendorToolConfig{
			Name:       "sandisk-tool",
			VendorID:   0x0781,
			MaxDevices: 1,
		}),
	}
	for _, d := range drivers {
		if err := reg.Register(d); err != nil {
			logger.Error("driver registration failed", "driver", d.Name(), "err", err)
		}
	}
}

// buildSource creates the configured event source. The *simbus.Bus is
// returned alongside the generic source so the interactive shell can
// inject devices; it is nil for other sources.
func buildSource(logger *slog.Logger) (bus.Source, *simbus.Bus, error) {
	switch config.Source {
	case "sim":
		sim := simbus.New()
		sim.SetLogger(logger)
		if config.Script != "" {
			script, err := simbus.LoadScript(config.Script)
			if err != nil {
				return nil, nil, err
			}
			sim.SetScript(script)
			logger.Info("loaded device script", "script", script.Name, "steps", len(script.Steps))
		}
		return sim, sim, nil

	case "netlink":
		if config.Script != "" {
			return nil, nil, errors.New("-script requires -source sim")
		}
		src, err := newNetlinkSource(logger)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown source: %s (use: sim, netlink)", config.Source)
	}
}

// switchWriter is an io.Writer whose destination can be swapped while
// handlers hold a reference to it.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// SetOutput redirects subsequent writes to w.
func (s *switchWriter) SetOutput(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
