// Package bus defines the boundary between bus backends and the
// hotplug layer.
//
// A Source watches some bus implementation (the kernel's uevent
// stream, a simulator, a test script) and reports what happened as a
// stream of events. Sources only report; all matching and attachment
// policy lives above, in hotplug and engine. The contract a Source
// must honor: exactly one Arrival per device per connection, Removal
// only for devices it reported, and per-device ordering within its
// stream.
package bus

import (
	"context"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Event is one bus occurrence. The concrete types are Arrival,
// Removal, and Reset; switch on them.
type Event interface {
	busEvent()
}

// Arrival reports a fully enumerated device ready for matching.
type Arrival struct {
	Device *usb.Device
}

// Removal reports that the device with DeviceID left the bus.
type Removal struct {
	DeviceID usb.DeviceID
}

// Reset reports a host controller reset. Every device on the bus is
// implicitly gone; survivors re-arrive through fresh Arrivals.
type Reset struct {
	Bus uint8
}

func (Arrival) busEvent() {}
func (Removal) busEvent() {}
func (Reset) busEvent()   {}

// Source produces hotplug events from a bus backend.
type Source interface {
	// Events returns the delivery channel. The source closes it when
	// Run returns.
	Events() <-chan Event

	// Run drives the source until ctx is cancelled or a fatal error
	// occurs.
	Run(ctx context.Context) error

	// Close releases the source's resources. Safe to call more than
	// once.
	Close() error
}
