package hotplug

import (
	"errors"
	"log/slog"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config configures an Orchestrator.
type Config struct {
	// Workers is the number of event workers. Events for one device
	// always land on the same worker, so per-device ordering holds at
	// any worker count. Zero selects the default of 1.
	Workers int

	// QueueDepth is the per-worker event queue capacity. Enqueue
	// fails with ErrQueueFull when a queue is at capacity. Zero
	// selects the default of 64.
	QueueDepth int

	// ProbeTimeout bounds each individual driver probe. Zero leaves
	// probes bounded only by the orchestrator's lifetime.
	ProbeTimeout time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// Journal is the optional lifecycle event journal.
	// If nil, journaling is disabled.
	Journal log.Logger

	// OnRelease is invoked after a removed device has been detached
	// and dropped from the device table. The bus layer may recycle
	// the record afterwards. Runs on a worker goroutine.
	OnRelease func(dev *usb.Device)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      1,
		QueueDepth:   64,
		ProbeTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return ErrInvalidConfig
	}
	if c.QueueDepth < 0 {
		return ErrInvalidConfig
	}
	if c.ProbeTimeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}
