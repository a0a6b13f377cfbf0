package examples

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// MassStorageDriver claims bulk-only SCSI mass storage devices. It
// accepts the class either at device level or on an interface, the
// way real flash drives declare it, and declines protocols other than
// bulk-only transport.
type MassStorageDriver struct {
	mu      sync.RWMutex
	devices map[usb.DeviceID]string
}

// NewMassStorageDriver creates the driver with no devices attached.
func NewMassStorageDriver() *MassStorageDriver {
	return &MassStorageDriver{devices: make(map[usb.DeviceID]string)}
}

// Name returns the driver name.
func (d *MassStorageDriver) Name() string { return "usb-storage" }

// Targets returns the mass storage class target.
func (d *MassStorageDriver) Targets() []usb.Target {
	return []usb.Target{usb.TargetClass(usb.ClassMassStorage)}
}

// Probe accepts bulk-only SCSI devices and declines everything else.
func (d *MassStorageDriver) Probe(ctx context.Context, dev *usb.Device) error {
	sub, proto, iface, err := storageIdentity(dev)
	if err != nil {
		return err
	}
	if sub != usb.SubClassSCSI || proto != usb.ProtocolBulkOnly {
		return fmt.Errorf("storage protocol %02x/%02x not bulk-only SCSI: %w",
			uint8(sub), uint8(proto), usb.ErrUnsupported)
	}
	// Scripted descriptors may omit endpoint detail; only argue with
	// declared topology.
	if iface != nil && len(iface.Endpoints) > 0 {
		if !iface.HasEndpoint(usb.TransferBulk, usb.DirectionIn) ||
			!iface.HasEndpoint(usb.TransferBulk, usb.DirectionOut) {
			return fmt.Errorf("interface %d has no bulk pair: %w", iface.Number, usb.ErrUnsupported)
		}
	}

	d.mu.Lock()
	d.devices[dev.ID()] = dev.Product()
	d.mu.Unlock()
	return nil
}

// Detach forgets the device.
func (d *MassStorageDriver) Detach(ctx context.Context, dev *usb.Device) {
	d.mu.Lock()
	delete(d.devices, dev.ID())
	d.mu.Unlock()
}

// Count returns the number of attached devices.
func (d *MassStorageDriver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices)
}

// Devices returns the attached device identifiers, sorted.
func (d *MassStorageDriver) Devices() []usb.DeviceID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]usb.DeviceID, 0, len(d.devices))
	for id := range d.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// storageIdentity locates the device's mass storage identity, from
// the device descriptor or the first storage interface.
func storageIdentity(dev *usb.Device) (usb.SubClass, usb.Protocol, *usb.Interface, error) {
	if dev.Class() == usb.ClassMassStorage {
		return dev.SubClass(), dev.Protocol(), nil, nil
	}
	for _, iface := range dev.Interfaces() {
		if iface.Class == usb.ClassMassStorage {
			return iface.SubClass, iface.Protocol, iface, nil
		}
	}
	return 0, 0, nil, fmt.Errorf("no mass storage interface: %w", usb.ErrUnsupported)
}
