package examples

import (
	"context"
	"fmt"
	"sync"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// VendorToolConfig configures a VendorToolDriver.
type VendorToolConfig struct {
	// Name is the driver name. Defaults to "vendor-tool".
	Name string

	// VendorID selects the vendor the tool speaks to.
	VendorID uint16

	// ProductID narrows the target to one product. Zero targets the
	// whole vendor.
	ProductID uint16

	// MaxDevices caps concurrent attachments. Probes beyond the cap
	// fail with a resource error rather than declining, so the
	// journal shows the refusal. Zero means no cap.
	MaxDevices int
}

// VendorToolDriver claims devices of one vendor by exact identity,
// the way a flashing or diagnostics tool grabs its hardware. It sits
// in the device specificity tier, so it beats class drivers to its
// own devices regardless of registration order.
type VendorToolDriver struct {
	config VendorToolConfig

	mu      sync.RWMutex
	devices map[usb.DeviceID]struct{}
}

// NewVendorToolDriver creates the driver for the configured identity.
func NewVendorToolDriver(config VendorToolConfig) *VendorToolDriver {
	if config.Name == "" {
		config.Name = "vendor-tool"
	}
	return &VendorToolDriver{
		config:  config,
		devices: make(map[usb.DeviceID]struct{}),
	}
}

// Name returns the driver name.
func (d *VendorToolDriver) Name() string { return d.config.Name }

// Targets returns the exact identity target.
func (d *VendorToolDriver) Targets() []usb.Target {
	if d.config.ProductID != 0 {
		return []usb.Target{usb.TargetDeviceID(d.config.VendorID, d.config.ProductID)}
	}
	return []usb.Target{usb.TargetVendor(d.config.VendorID)}
}

// Probe accepts the device unless the attachment cap is reached.
func (d *VendorToolDriver) Probe(ctx context.Context, dev *usb.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.config.MaxDevices > 0 && len(d.devices) >= d.config.MaxDevices {
		return fmt.Errorf("all %d device slots in use: %w", d.config.MaxDevices, usb.ErrResourceExhausted)
	}
	d.devices[dev.ID()] = struct{}{}
	return nil
}

// Detach frees the device's slot.
func (d *VendorToolDriver) Detach(ctx context.Context, dev *usb.Device) {
	d.mu.Lock()
	delete(d.devices, dev.ID())
	d.mu.Unlock()
}

// Count returns the number of attached devices.
func (d *VendorToolDriver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices)
}
