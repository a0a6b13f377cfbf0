package examples

import (
	"context"
	"fmt"
	"sync"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// HID device kinds as reported by Kind.
const (
	HIDKeyboard = "keyboard"
	HIDMouse    = "mouse"
	HIDGeneric  = "generic"
)

// HIDDriver claims human interface devices. Boot-protocol keyboards
// and mice are recognized by their interface protocol; anything else
// in the class attaches as a generic HID device.
type HIDDriver struct {
	mu    sync.RWMutex
	kinds map[usb.DeviceID]string
}

// NewHIDDriver creates the driver with no devices attached.
func NewHIDDriver() *HIDDriver {
	return &HIDDriver{kinds: make(map[usb.DeviceID]string)}
}

// Name returns the driver name.
func (d *HIDDriver) Name() string { return "usb-hid" }

// Targets returns the HID class target.
func (d *HIDDriver) Targets() []usb.Target {
	return []usb.Target{usb.TargetClass(usb.ClassHID)}
}

// Probe accepts HID devices that expose an interrupt IN endpoint for
// input reports.
func (d *HIDDriver) Probe(ctx context.Context, dev *usb.Device) error {
	sub, proto, iface, err := hidIdentity(dev)
	if err != nil {
		return err
	}
	if iface != nil && len(iface.Endpoints) > 0 {
		if !iface.HasEndpoint(usb.TransferInterrupt, usb.DirectionIn) {
			return fmt.Errorf("interface %d has no interrupt IN endpoint: %w",
				iface.Number, usb.ErrUnsupported)
		}
	}

	kind := HIDGeneric
	if sub == usb.SubClassHIDBoot {
		switch proto {
		case usb.ProtocolHIDKeyboard:
			kind = HIDKeyboard
		case usb.ProtocolHIDMouse:
			kind = HIDMouse
		}
	}

	d.mu.Lock()
	d.kinds[dev.ID()] = kind
	d.mu.Unlock()
	return nil
}

// Detach forgets the device.
func (d *HIDDriver) Detach(ctx context.Context, dev *usb.Device) {
	d.mu.Lock()
	delete(d.kinds, dev.ID())
	d.mu.Unlock()
}

// Kind returns what an attached device was recognized as.
func (d *HIDDriver) Kind(id usb.DeviceID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kind, ok := d.kinds[id]
	return kind, ok
}

// Count returns the number of attached devices.
func (d *HIDDriver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.kinds)
}

// hidIdentity locates the device's HID identity, from the device
// descriptor or the first HID interface.
func hidIdentity(dev *usb.Device) (usb.SubClass, usb.Protocol, *usb.Interface, error) {
	if dev.Class() == usb.ClassHID {
		return dev.SubClass(), dev.Protocol(), nil, nil
	}
	for _, iface := range dev.Interfaces() {
		if iface.Class == usb.ClassHID {
			return iface.SubClass, iface.Protocol, iface, nil
		}
	}
	return 0, 0, nil, fmt.Errorf("no hid interface: %w", usb.ErrUnsupported)
}
