package examples

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Interface satisfaction checks.
var (
	_ usb.Driver   = (*MassStorageDriver)(nil)
	_ usb.Targeter = (*MassStorageDriver)(nil)
	_ usb.Driver   = (*HIDDriver)(nil)
	_ usb.Targeter = (*HIDDriver)(nil)
	_ usb.Driver   = (*VendorToolDriver)(nil)
	_ usb.Targeter = (*VendorToolDriver)(nil)
)

// bulkPair is a storage interface's bulk IN and OUT endpoints.
func bulkPair() []usb.Endpoint {
	return []usb.Endpoint{
		{Address: 0x81, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 512},
		{Address: 0x02, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 512},
	}
}

// flashDrive builds a per-interface mass storage device with a bulk
// pair, the common real-world shape.
func flashDrive(port string) *usb.Device {
	return usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: port},
		VendorID:  0x0781,
		ProductID: 0x5583,
		Class:     usb.ClassPerInterface,
		Speed:     usb.SpeedHigh,
		Product:   "Extreme SSD",
		Interfaces: []*usb.Interface{{
			Number:    0,
			Class:     usb.ClassMassStorage,
			SubClass:  usb.SubClassSCSI,
			Protocol:  usb.ProtocolBulkOnly,
			Endpoints: bulkPair(),
		}},
	})
}

// hidDevice builds a per-interface HID device with the given boot
// identity and an interrupt IN endpoint.
func hidDevice(port string, sub usb.SubClass, proto usb.Protocol) *usb.Device {
	return usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: port},
		VendorID:  0x046d,
		ProductID: 0xc077,
		Class:     usb.ClassPerInterface,
		Speed:     usb.SpeedLow,
		Interfaces: []*usb.Interface{{
			Number:   0,
			Class:    usb.ClassHID,
			SubClass: sub,
			Protocol: proto,
			Endpoints: []usb.Endpoint{
				{Address: 0x81, Attributes: uint8(usb.TransferInterrupt), MaxPacketSize: 8, Interval: 10},
			},
		}},
	})
}

func TestMassStorageProbe(t *testing.T) {
	drv := NewMassStorageDriver()
	dev := flashDrive("4.2")

	if err := drv.Probe(context.Background(), dev); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if drv.Count() != 1 {
		t.Errorf("Count = %d, want 1", drv.Count())
	}
	if ids := drv.Devices(); len(ids) != 1 || ids[0] != dev.ID() {
		t.Errorf("Devices = %v", ids)
	}

	drv.Detach(context.Background(), dev)
	if drv.Count() != 0 {
		t.Errorf("Count after detach = %d, want 0", drv.Count())
	}
}

func TestMassStorageDeviceLevelClass(t *testing.T) {
	drv := NewMassStorageDriver()
	dev := usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: "1"},
		VendorID:  0x0781,
		ProductID: 0x5583,
		Class:     usb.ClassMassStorage,
		SubClass:  usb.SubClassSCSI,
		Protocol:  usb.ProtocolBulkOnly,
	})

	if err := drv.Probe(context.Background(), dev); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
}

func TestMassStorageDeclinesNonBulkOnly(t *testing.T) {
	drv := NewMassStorageDriver()
	// UFI floppy: storage class, wrong transport.
	dev := usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: "2"},
		VendorID:  0x057b,
		ProductID: 0x0000,
		Class:     usb.ClassMassStorage,
		SubClass:  0x04,
		Protocol:  0x00,
	})

	err := drv.Probe(context.Background(), dev)
	if !errors.Is(err, usb.ErrUnsupported) {
		t.Errorf("Probe = %v, want ErrUnsupported", err)
	}
	if drv.Count() != 0 {
		t.Errorf("declined device was remembered")
	}
}

func TestMassStorageDeclinesMissingBulkPair(t *testing.T) {
	drv := NewMassStorageDriver()
	dev := usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: "3"},
		VendorID:  0x0781,
		ProductID: 0x5583,
		Class:     usb.ClassPerInterface,
		Interfaces: []*usb.Interface{{
			Class:    usb.ClassMassStorage,
			SubClass: usb.SubClassSCSI,
			Protocol: usb.ProtocolBulkOnly,
			Endpoints: []usb.Endpoint{
				{Address: 0x81, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 512},
			},
		}},
	})

	if err := drv.Probe(context.Background(), dev); !errors.Is(err, usb.ErrUnsupported) {
		t.Errorf("Probe = %v, want ErrUnsupported", err)
	}
}

func TestMassStorageDeclinesForeignDevice(t *testing.T) {
	drv := NewMassStorageDriver()
	dev := hidDevice("4", usb.SubClassHIDBoot, usb.ProtocolHIDKeyboard)

	if err := drv.Probe(context.Background(), dev); !errors.Is(err, usb.ErrUnsupported) {
		t.Errorf("Probe = %v, want ErrUnsupported", err)
	}
}

func TestHIDKinds(t *testing.T) {
	tests := []struct {
		name  string
		sub   usb.SubClass
		proto usb.Protocol
		want  string
	}{
		{"boot keyboard", usb.SubClassHIDBoot, usb.ProtocolHIDKeyboard, HIDKeyboard},
		{"boot mouse", usb.SubClassHIDBoot, usb.ProtocolHIDMouse, HIDMouse},
		{"boot other", usb.SubClassHIDBoot, 0x07, HIDGeneric},
		{"report only", 0x00, 0x00, HIDGeneric},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := NewHIDDriver()
			dev := hidDevice(fmt.Sprintf("%d", i+1), tt.sub, tt.proto)

			if err := drv.Probe(context.Background(), dev); err != nil {
				t.Fatalf("Probe failed: %v", err)
			}
			kind, ok := drv.Kind(dev.ID())
			if !ok || kind != tt.want {
				t.Errorf("Kind = %q (%v), want %q", kind, ok, tt.want)
			}
		})
	}
}

func TestHIDRequiresInterruptIn(t *testing.T) {
	drv := NewHIDDriver()
	dev := usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: "9"},
		VendorID:  0x046d,
		ProductID: 0xc077,
		Class:     usb.ClassPerInterface,
		Interfaces: []*usb.Interface{{
			Class: usb.ClassHID,
			Endpoints: []usb.Endpoint{
				{Address: 0x02, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 64},
			},
		}},
	})

	if err := drv.Probe(context.Background(), dev); !errors.Is(err, usb.ErrUnsupported) {
		t.Errorf("Probe = %v, want ErrUnsupported", err)
	}
}

func TestHIDDetach(t *testing.T) {
	drv := NewHIDDriver()
	dev := hidDevice("5", usb.SubClassHIDBoot, usb.ProtocolHIDMouse)

	if err := drv.Probe(context.Background(), dev); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	drv.Detach(context.Background(), dev)
	if _, ok := drv.Kind(dev.ID()); ok {
		t.Error("detached device still known")
	}
	if drv.Count() != 0 {
		t.Errorf("Count = %d, want 0", drv.Count())
	}
}

func TestVendorToolTargets(t *testing.T) {
	exact := NewVendorToolDriver(VendorToolConfig{VendorID: 0x2341, ProductID: 0x0043})
	targets := exact.Targets()
	if len(targets) != 1 || targets[0].VendorID == nil || targets[0].ProductID == nil {
		t.Fatalf("exact targets = %+v", targets)
	}
	if got := usb.DriverSpecificity(exact); got != usb.SpecificityDevice {
		t.Errorf("specificity = %v, want DEVICE", got)
	}

	wholeVendor := NewVendorToolDriver(VendorToolConfig{VendorID: 0x2341})
	targets = wholeVendor.Targets()
	if len(targets) != 1 || targets[0].VendorID == nil || targets[0].ProductID != nil {
		t.Fatalf("vendor targets = %+v", targets)
	}

	if NewVendorToolDriver(VendorToolConfig{}).Name() != "vendor-tool" {
		t.Error("default name not applied")
	}
}

func TestVendorToolCap(t *testing.T) {
	drv := NewVendorToolDriver(VendorToolConfig{VendorID: 0x2341, ProductID: 0x0043, MaxDevices: 1})

	first := usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: "1"},
		VendorID:  0x2341,
		ProductID: 0x0043,
	})
	second := usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: 1, Port: "2"},
		VendorID:  0x2341,
		ProductID: 0x0043,
	})

	if err := drv.Probe(context.Background(), first); err != nil {
		t.Fatalf("first probe failed: %v", err)
	}

	err := drv.Probe(context.Background(), second)
	if !errors.Is(err, usb.ErrResourceExhausted) {
		t.Fatalf("second probe = %v, want ErrResourceExhausted", err)
	}
	if errors.Is(err, usb.ErrUnsupported) {
		t.Error("cap refusal must not read as a decline")
	}

	drv.Detach(context.Background(), first)
	if err := drv.Probe(context.Background(), second); err != nil {
		t.Errorf("probe after detach failed: %v", err)
	}
	if drv.Count() != 1 {
		t.Errorf("Count = %d, want 1", drv.Count())
	}
}
