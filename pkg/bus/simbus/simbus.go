package simbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/bus"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Simulated bus errors.
var (
	ErrClosed  = errors.New("simulated bus is closed")
	ErrBacklog = errors.New("event backlog is full")
	ErrNoPort  = errors.New("device has no port address")
)

// eventBacklog is the capacity of the event channel. Producers get
// ErrBacklog instead of blocking when the consumer falls this far
// behind.
const eventBacklog = 64

// Bus is an in-memory bus source. Hotplug traffic is injected either
// programmatically, through PlugDevice and friends, or by replaying a
// Script through Run. Both styles can be mixed on one Bus.
type Bus struct {
	mu     sync.Mutex
	events chan bus.Event
	closed bool

	script *Script
	logger *slog.Logger
}

// New creates an idle simulated bus.
func New() *Bus {
	return &Bus{events: make(chan bus.Event, eventBacklog)}
}

// SetScript sets the script Run replays. Must be called before Run.
func (b *Bus) SetScript(script *Script) { b.script = script }

// SetLogger sets an optional logger for debug output.
func (b *Bus) SetLogger(logger *slog.Logger) { b.logger = logger }

// Events returns the delivery channel. It is closed when Run returns
// or the bus is closed.
func (b *Bus) Events() <-chan bus.Event { return b.events }

// PlugDevice connects a device described by desc and returns its
// record. The same record is what arrives on the event channel.
func (b *Bus) PlugDevice(desc usb.Desc) (*usb.Device, error) {
	if desc.Address.Port == "" {
		return nil, ErrNoPort
	}
	dev := usb.NewDevice(desc)
	if err := b.emit(bus.Arrival{Device: dev}); err != nil {
		return nil, err
	}
	b.debugLog("plugged device", "id", dev.ID(), "vendor", desc.VendorID, "product", desc.ProductID)
	return dev, nil
}

// UnplugDevice disconnects the device with the given identifier. The
// simulator does not track presence, so unplugging an unknown device
// simply emits a removal the consumer will ignore.
func (b *Bus) UnplugDevice(id usb.DeviceID) error {
	if err := b.emit(bus.Removal{DeviceID: id}); err != nil {
		return err
	}
	b.debugLog("unplugged device", "id", id)
	return nil
}

// ResetBus resets one host controller bus, disconnecting every device
// on it.
func (b *Bus) ResetBus(busNumber uint8) error {
	if err := b.emit(bus.Reset{Bus: busNumber}); err != nil {
		return err
	}
	b.debugLog("reset bus", "bus", busNumber)
	return nil
}

// Run replays the configured script, if any, then idles until ctx is
// cancelled. The event channel is closed on return.
func (b *Bus) Run(ctx context.Context) error {
	defer b.Close()
	if b.script != nil {
		if err := b.play(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// Close closes the bus and its event channel. Safe to call more than
// once; late producers get ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

// play emits the script's steps at their offsets, measured from the
// moment play starts.
func (b *Bus) play(ctx context.Context) error {
	b.debugLog("replaying script", "name", b.script.Name, "steps", len(b.script.Steps))
	start := time.Now()
	for i := range b.script.Steps {
		step := &b.script.Steps[i]
		if wait := time.Until(start.Add(step.At)); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := b.apply(step); err != nil {
			return fmt.Errorf("script %q step %d: %w", b.script.Name, i+1, err)
		}
	}
	return nil
}

func (b *Bus) apply(step *Step) error {
	switch step.Action {
	case ActionPlug:
		_, err := b.PlugDevice(*step.Device)
		return err
	case ActionUnplug:
		return b.UnplugDevice(step.ID)
	case ActionReset:
		return b.ResetBus(step.Bus)
	default:
		return fmt.Errorf("unknown action %d", step.Action)
	}
}

func (b *Bus) emit(ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.events <- ev:
		return nil
	default:
		return ErrBacklog
	}
}

func (b *Bus) debugLog(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}
