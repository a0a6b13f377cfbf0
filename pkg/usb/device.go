package usb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Device claim errors.
var (
	ErrDeviceDeparted = errors.New("device departed")
	ErrDeviceBusy     = errors.New("device busy")
	ErrNotProbing     = errors.New("device not probing")
)

// Address locates a device in the bus topology.
type Address struct {
	// Bus is the controller bus number.
	Bus uint8

	// Port is the dotted hub port path below the root hub, e.g. "4.2".
	Port string
}

// ID returns the device identifier derived from this address.
func (a Address) ID() DeviceID {
	return DeviceID(fmt.Sprintf("%d:%s", a.Bus, a.Port))
}

// String returns the address in "bus:portpath" form.
func (a Address) String() string {
	return string(a.ID())
}

// DeviceID identifies a device while it is present. It is derived from
// the topology address, so removal events can be routed to the device
// record without descriptor access.
type DeviceID string

// ParseDeviceID splits a device identifier back into its address.
func ParseDeviceID(id DeviceID) (Address, error) {
	bus, port, ok := strings.Cut(string(id), ":")
	if !ok || port == "" {
		return Address{}, fmt.Errorf("malformed device id %q", id)
	}
	n, err := strconv.ParseUint(bus, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("malformed device id %q: %w", id, err)
	}
	return Address{Bus: uint8(n), Port: port}, nil
}

// AttachState tracks a device's position in the attachment lifecycle.
type AttachState uint8

// Attachment lifecycle states.
const (
	// StateUnclaimed means no driver owns the device and no probe is
	// in flight.
	StateUnclaimed AttachState = iota

	// StateProbing means a matching pass is walking candidate drivers.
	StateProbing

	// StateAttached means a driver claimed the device.
	StateAttached

	// StateNoDriver means a matching pass finished with no claimant.
	StateNoDriver

	// StateDeparted means the device was physically removed. Terminal.
	StateDeparted
)

// String returns the state name.
func (s AttachState) String() string {
	switch s {
	case StateUnclaimed:
		return "UNCLAIMED"
	case StateProbing:
		return "PROBING"
	case StateAttached:
		return "ATTACHED"
	case StateNoDriver:
		return "NO_DRIVER"
	case StateDeparted:
		return "DEPARTED"
	default:
		return "UNKNOWN"
	}
}

// Desc carries the decoded descriptor identity used to construct a
// Device. How these values are read off the wire is the bus layer's
// concern.
type Desc struct {
	Address    Address
	VendorID   uint16
	ProductID  uint16
	Device     BCD
	USBRelease BCD
	Class      Class
	SubClass   SubClass
	Protocol   Protocol
	Speed      Speed

	Manufacturer string
	Product      string
	SerialNumber string

	Interfaces []*Interface
}

// Device is a passive record of an attached USB device. Descriptor
// identity is fixed at construction; the attachment state and claim
// fields are guarded by a per-device mutex and reserved to the
// attachment engine. A Device performs no I/O.
type Device struct {
	mu sync.RWMutex

	address Address

	vendorID  uint16
	productID uint16

	deviceRelease BCD
	usbRelease    BCD

	class    Class
	subClass SubClass
	protocol Protocol

	speed Speed

	manufacturer string
	product      string
	serialNumber string

	interfaces []*Interface

	state   AttachState
	claimer Driver
}

// NewDevice creates a device record from a decoded descriptor.
func NewDevice(desc Desc) *Device {
	return &Device{
		address:       desc.Address,
		vendorID:      desc.VendorID,
		productID:     desc.ProductID,
		deviceRelease: desc.Device,
		usbRelease:    desc.USBRelease,
		class:         desc.Class,
		subClass:      desc.SubClass,
		protocol:      desc.Protocol,
		speed:         desc.Speed,
		manufacturer:  desc.Manufacturer,
		product:       desc.Product,
		serialNumber:  desc.SerialNumber,
		interfaces:    desc.Interfaces,
		state:         StateUnclaimed,
	}
}

// Address returns the device's topology address.
func (d *Device) Address() Address {
	return d.address
}

// ID returns the device identifier.
func (d *Device) ID() DeviceID {
	return d.address.ID()
}

// VendorID returns the vendor identifier.
func (d *Device) VendorID() uint16 {
	return d.vendorID
}

// ProductID returns the product identifier.
func (d *Device) ProductID() uint16 {
	return d.productID
}

// DeviceRelease returns the device release number.
func (d *Device) DeviceRelease() BCD {
	return d.deviceRelease
}

// USBRelease returns the USB specification release the device reports.
func (d *Device) USBRelease() BCD {
	return d.usbRelease
}

// Class returns the device-level class code.
func (d *Device) Class() Class {
	return d.class
}

// SubClass returns the device-level subclass code.
func (d *Device) SubClass() SubClass {
	return d.subClass
}

// Protocol returns the device-level protocol code.
func (d *Device) Protocol() Protocol {
	return d.protocol
}

// Speed returns the negotiated bus speed.
func (d *Device) Speed() Speed {
	return d.speed
}

// Manufacturer returns the manufacturer string, if read.
func (d *Device) Manufacturer() string {
	return d.manufacturer
}

// Product returns the product string, if read.
func (d *Device) Product() string {
	return d.product
}

// SerialNumber returns the serial number string, if read.
func (d *Device) SerialNumber() string {
	return d.serialNumber
}

// Interfaces returns the interfaces of the active configuration.
func (d *Device) Interfaces() []*Interface {
	result := make([]*Interface, len(d.interfaces))
	copy(result, d.interfaces)
	return result
}

// InterfaceCount returns the number of interfaces.
func (d *Device) InterfaceCount() int {
	return len(d.interfaces)
}

// State returns the current attachment state.
func (d *Device) State() AttachState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// ClaimedBy returns the owning driver, if any.
func (d *Device) ClaimedBy() (Driver, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.claimer, d.claimer != nil
}

// BeginProbe moves the device from UNCLAIMED or NO_DRIVER to PROBING.
// It fails with ErrDeviceDeparted after removal and ErrDeviceBusy if
// the device is attached or another probe is in flight.
func (d *Device) BeginProbe() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateUnclaimed, StateNoDriver:
		d.state = StateProbing
		return nil
	case StateDeparted:
		return ErrDeviceDeparted
	default:
		return ErrDeviceBusy
	}
}

// Claim commits drv as the owning driver. The commit checks the state
// it expects to replace: if a concurrent removal marked the device
// DEPARTED the claim fails instead of resurrecting the record.
func (d *Device) Claim(drv Driver) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateProbing:
		d.state = StateAttached
		d.claimer = drv
		return nil
	case StateDeparted:
		return ErrDeviceDeparted
	default:
		return ErrNotProbing
	}
}

// EndProbe finishes a matching pass that produced no claim, leaving
// the device NO_DRIVER. Departure during the pass wins over the
// transition.
func (d *Device) EndProbe() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateProbing {
		d.state = StateNoDriver
	}
}

// ReleaseClaim clears the owning driver after detach. An attached
// device returns to UNCLAIMED; a departed device stays departed.
func (d *Device) ReleaseClaim() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.claimer = nil
	if d.state == StateAttached {
		d.state = StateUnclaimed
	}
}

// MarkDeparted records physical removal. The state is terminal; any
// in-flight claim observes it when committing.
func (d *Device) MarkDeparted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateDeparted
}

// DeviceInfo is a serializable summary of a device for diagnostics.
type DeviceInfo struct {
	ID           DeviceID         `cbor:"1,keyasint"`
	VendorID     uint16           `cbor:"2,keyasint"`
	ProductID    uint16           `cbor:"3,keyasint"`
	Class        Class            `cbor:"4,keyasint"`
	SubClass     SubClass         `cbor:"5,keyasint"`
	Protocol     Protocol         `cbor:"6,keyasint"`
	Speed        Speed            `cbor:"7,keyasint"`
	USBRelease   BCD              `cbor:"8,keyasint"`
	Manufacturer string           `cbor:"9,keyasint,omitempty"`
	Product      string           `cbor:"10,keyasint,omitempty"`
	SerialNumber string           `cbor:"11,keyasint,omitempty"`
	Interfaces   []*InterfaceInfo `cbor:"12,keyasint,omitempty"`
}

// Info returns device information for diagnostics.
func (d *Device) Info() *DeviceInfo {
	interfaces := make([]*InterfaceInfo, 0, len(d.interfaces))
	for _, intf := range d.interfaces {
		interfaces = append(interfaces, intf.Info())
	}

	return &DeviceInfo{
		ID:           d.ID(),
		VendorID:     d.vendorID,
		ProductID:    d.productID,
		Class:        d.class,
		SubClass:     d.subClass,
		Protocol:     d.protocol,
		Speed:        d.speed,
		USBRelease:   d.usbRelease,
		Manufacturer: d.manufacturer,
		Product:      d.product,
		SerialNumber: d.serialNumber,
		Interfaces:   interfaces,
	}
}
