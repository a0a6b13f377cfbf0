package log

import (
	"time"

	"github.com/google/uuid"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Event represents one attachment journal record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// EventID uniquely identifies the event (UUID).
	EventID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// DeviceID is the device the event concerns, if any.
	DeviceID usb.DeviceID `cbor:"4,keyasint,omitempty"`

	// Driver is the driver name the event concerns, if any.
	Driver string `cbor:"5,keyasint,omitempty"`

	// Bus is the bus number for bus-scoped events (resets).
	Bus *uint8 `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Device   *usb.DeviceInfo `cbor:"7,keyasint,omitempty"`  // Arrival
	Probe    *ProbeEvent     `cbor:"8,keyasint,omitempty"`  // ProbeFailure
	Attach   *AttachEvent    `cbor:"9,keyasint,omitempty"`  // Claim, NoDriver
	Registry *RegistryEvent  `cbor:"10,keyasint,omitempty"` // Registry
}

// NewEvent creates an event of the given category stamped with the
// current time and a fresh event ID.
func NewEvent(category Category) Event {
	return Event{
		Timestamp: time.Now(),
		EventID:   uuid.NewString(),
		Category:  category,
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryArrival indicates a device arrived on the bus.
	CategoryArrival Category = 0
	// CategoryRemoval indicates a device left the bus.
	CategoryRemoval Category = 1
	// CategoryClaim indicates a driver claimed a device.
	CategoryClaim Category = 2
	// CategoryNoDriver indicates matching exhausted all candidates.
	CategoryNoDriver Category = 3
	// CategoryProbeFailure indicates a probe failed (not declined).
	CategoryProbeFailure Category = 4
	// CategoryDetach indicates a driver was detached from a device.
	CategoryDetach Category = 5
	// CategoryRegistry indicates a registry mutation.
	CategoryRegistry Category = 6
	// CategoryReset indicates a bus reset.
	CategoryReset Category = 7
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryArrival:
		return "ARRIVAL"
	case CategoryRemoval:
		return "REMOVAL"
	case CategoryClaim:
		return "CLAIM"
	case CategoryNoDriver:
		return "NO_DRIVER"
	case CategoryProbeFailure:
		return "PROBE_FAILURE"
	case CategoryDetach:
		return "DETACH"
	case CategoryRegistry:
		return "REGISTRY"
	case CategoryReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory returns the category with the given name.
func ParseCategory(name string) (Category, bool) {
	for c := CategoryArrival; c <= CategoryReset; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// ProbeEvent captures one failed probe attempt. Declines
// (usb.ErrUnsupported) are not journaled; they are flow control.
type ProbeEvent struct {
	// Kind classifies the failure.
	Kind usb.ProbeErrorKind `cbor:"1,keyasint"`

	// Attempt is the 1-based position in the candidate walk.
	Attempt int `cbor:"2,keyasint"`

	// Error is the probe error message.
	Error string `cbor:"3,keyasint,omitempty"`

	// Duration is how long the probe ran, in nanoseconds.
	Duration time.Duration `cbor:"4,keyasint,omitempty"`
}

// AttachEvent captures the outcome of a matching pass. For claims the
// top-level Driver field names the winner; for no-driver outcomes it
// is empty.
type AttachEvent struct {
	// Probes is the number of candidates offered the device.
	Probes int `cbor:"1,keyasint"`

	// Duration is the total matching time, in nanoseconds.
	Duration time.Duration `cbor:"2,keyasint,omitempty"`

	// Specificity is the winning driver's match tier (claims only).
	Specificity *usb.Specificity `cbor:"3,keyasint,omitempty"`
}

// RegistryEvent captures a registry mutation. The top-level Driver
// field names the driver involved.
type RegistryEvent struct {
	// Op is the registry operation.
	Op RegistryOp `cbor:"1,keyasint"`

	// Drivers is the registry size after the operation.
	Drivers int `cbor:"2,keyasint"`
}

// RegistryOp is a registry mutation type.
type RegistryOp uint8

const (
	// RegistryOpRegister indicates a driver registration.
	RegistryOpRegister RegistryOp = 0
	// RegistryOpUnregister indicates a driver removal.
	RegistryOpUnregister RegistryOp = 1
)

// String returns the operation name.
func (o RegistryOp) String() string {
	switch o {
	case RegistryOpRegister:
		return "REGISTER"
	case RegistryOpUnregister:
		return "UNREGISTER"
	default:
		return "UNKNOWN"
	}
}
