package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/registry"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Engine walks registry candidates for arriving devices and drives the
// probe, claim, and detach transitions. It owns no goroutines; callers
// (normally the hotplug orchestrator) provide per-device serialization.
type Engine struct {
	registry *registry.Registry

	// journal receives lifecycle events. Never nil.
	journal log.Logger

	// logger is for human-readable diagnostics (optional).
	logger *slog.Logger

	// probeTimeout bounds each individual driver probe. Zero means no
	// deadline beyond the caller's context.
	probeTimeout time.Duration
}

// New creates an engine that matches devices against reg.
// Configure journal, logger, and probe timeout before the first attach.
func New(reg *registry.Registry) *Engine {
	return &Engine{
		registry: reg,
		journal:  log.NoopLogger{},
	}
}

// SetJournal routes lifecycle events to j. Pass nil to disable journaling.
func (e *Engine) SetJournal(j log.Logger) {
	if j == nil {
		j = log.NoopLogger{}
	}
	e.journal = j
}

// SetLogger sets the logger for debug output.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// SetProbeTimeout bounds each driver probe. Zero disables the deadline.
func (e *Engine) SetProbeTimeout(d time.Duration) {
	e.probeTimeout = d
}

// Attach runs a matching pass for dev. Candidates are offered most
// specific first and the first successful probe wins the claim; no
// later candidate runs. A decline (usb.ErrUnsupported) moves the walk
// on silently. Any other probe error is recorded in the journal and
// the walk moves on; the driver is not retried on this pass. A device
// no candidate accepts parks in StateNoDriver, which is a normal
// outcome and returns nil. The error return reports pass-level
// interruptions only: a BeginProbe conflict or a device that departed
// mid-pass.
func (e *Engine) Attach(ctx context.Context, dev *usb.Device) error {
	if err := dev.BeginProbe(); err != nil {
		return err
	}

	start := time.Now()
	candidates := e.registry.CandidatesFor(dev)
	probes := 0

	for _, c := range candidates {
		probes++
		probeStart := time.Now()

		err := e.probe(ctx, c.Driver(), dev)
		if err == nil {
			claimed, cerr := e.claim(ctx, c, dev, probes, time.Since(start))
			if claimed {
				return nil
			}
			if cerr != nil {
				return cerr
			}
			continue
		}

		if errors.Is(err, usb.ErrUnsupported) {
			e.debugLog("driver declined device",
				"driver", c.Name(),
				"device_id", string(dev.ID()))
			continue
		}

		e.recordProbeFailure(dev, c.Name(), err, probes, time.Since(probeStart))
	}

	dev.EndProbe()
	if dev.State() == usb.StateDeparted {
		// The removal path owns the rest of the journal trail.
		return usb.ErrDeviceDeparted
	}

	event := log.NewEvent(log.CategoryNoDriver)
	event.DeviceID = dev.ID()
	event.Attach = &log.AttachEvent{Probes: probes, Duration: time.Since(start)}
	e.journal.Log(event)

	e.infoLog("no driver for device",
		"device_id", string(dev.ID()),
		"probes", probes)
	return nil
}

// Detach releases dev's claim if one exists: the driver's Detach runs
// (it cannot fail), the claim is dropped, and the registry attachment
// is released. Detaching an unclaimed device is a no-op. The caller
// decides what happens to the device afterward: the removal path marks
// it departed, the driver-unload path leaves it unclaimed.
func (e *Engine) Detach(ctx context.Context, dev *usb.Device) {
	drv, ok := dev.ClaimedBy()
	if !ok {
		return
	}

	drv.Detach(ctx, dev)
	dev.ReleaseClaim()
	e.registry.ReleaseAttachment(drv.Name())
	e.journalDetach(dev, drv.Name())

	e.debugLog("driver detached from device",
		"driver", drv.Name(),
		"device_id", string(dev.ID()))
}

// ReleaseDriver detaches the named driver from every device in devs it
// currently claims and reports how many it released. Run this sweep
// before Registry.Unregister so the attachment count can reach zero.
func (e *Engine) ReleaseDriver(ctx context.Context, name string, devs []*usb.Device) int {
	released := 0
	for _, dev := range devs {
		if drv, ok := dev.ClaimedBy(); ok && drv.Name() == name {
			e.Detach(ctx, dev)
			released++
		}
	}
	return released
}

// Rescan re-runs the matching pass for a device that ended in
// StateNoDriver or lost its driver to an unload. Registering a driver
// never re-probes existing devices on its own; rescan is the
// deliberate action that does.
func (e *Engine) Rescan(ctx context.Context, dev *usb.Device) error {
	e.debugLog("rescanning device", "device_id", string(dev.ID()))
	return e.Attach(ctx, dev)
}

// probe runs one driver probe under the configured deadline.
func (e *Engine) probe(ctx context.Context, drv usb.Driver, dev *usb.Device) error {
	if e.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.probeTimeout)
		defer cancel()
	}
	return drv.Probe(ctx, dev)
}

// claim commits a successful probe: the registry attachment first,
// then the device claim. Either commit can lose a race (driver
// unregistered mid-probe, device departed mid-probe) and the driver is
// then detached again, because its probe already initialized it.
func (e *Engine) claim(ctx context.Context, c *registry.Candidate, dev *usb.Device, probes int, elapsed time.Duration) (bool, error) {
	if err := c.Commit(); err != nil {
		e.warnLog("driver unregistered during probe, detaching",
			"driver", c.Name(),
			"device_id", string(dev.ID()))
		c.Driver().Detach(ctx, dev)
		e.journalDetach(dev, c.Name())
		return false, nil
	}

	if err := dev.Claim(c.Driver()); err != nil {
		c.Driver().Detach(ctx, dev)
		e.registry.ReleaseAttachment(c.Name())
		e.journalDetach(dev, c.Name())
		return false, err
	}

	tier := c.Specificity()
	event := log.NewEvent(log.CategoryClaim)
	event.DeviceID = dev.ID()
	event.Driver = c.Name()
	event.Attach = &log.AttachEvent{Probes: probes, Duration: elapsed, Specificity: &tier}
	e.journal.Log(event)

	e.infoLog("driver claimed device",
		"driver", c.Name(),
		"device_id", string(dev.ID()),
		"specificity", tier.String(),
		"probes", probes)
	return true, nil
}

func (e *Engine) recordProbeFailure(dev *usb.Device, driver string, err error, attempt int, elapsed time.Duration) {
	kind := usb.ClassifyProbeError(err)

	event := log.NewEvent(log.CategoryProbeFailure)
	event.DeviceID = dev.ID()
	event.Driver = driver
	event.Probe = &log.ProbeEvent{
		Kind:     kind,
		Attempt:  attempt,
		Error:    err.Error(),
		Duration: elapsed,
	}
	e.journal.Log(event)

	e.warnLog("driver probe failed",
		"driver", driver,
		"device_id", string(dev.ID()),
		"kind", kind.String(),
		"error", err)
}

func (e *Engine) journalDetach(dev *usb.Device, driver string) {
	event := log.NewEvent(log.CategoryDetach)
	event.DeviceID = dev.ID()
	event.Driver = driver
	e.journal.Log(event)
}

// debugLog logs a debug message if logging is enabled.
func (e *Engine) debugLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) infoLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) warnLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
