package interactive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// descFor builds the descriptor for a plug argument. Presets carry the
// interface topology the reference drivers check for; a bare vid:pid
// builds a vendor-specific device that only vendor-targeted drivers
// match.
func descFor(arg string, addr usb.Address) (usb.Desc, error) {
	switch strings.ToLower(arg) {
	case "flash":
		return flashDesc(addr), nil
	case "keyboard":
		return keyboardDesc(addr), nil
	case "mouse":
		return mouseDesc(addr), nil
	}

	vendor, product, ok := parseVIDPID(arg)
	if !ok {
		return usb.Desc{}, fmt.Errorf("unknown preset %q (use flash, keyboard, mouse, or vid:pid)", arg)
	}
	return usb.Desc{
		Address:    addr,
		VendorID:   vendor,
		ProductID:  product,
		USBRelease: 0x0200,
		Class:      usb.ClassVendor,
		Speed:      usb.SpeedFull,
	}, nil
}

// flashDesc is a SanDisk bulk-only SCSI mass storage device.
func flashDesc(addr usb.Address) usb.Desc {
	return usb.Desc{
		Address:      addr,
		VendorID:     0x0781,
		ProductID:    0x5583,
		Device:       0x0100,
		USBRelease:   0x0210,
		Class:        usb.ClassPerInterface,
		Speed:        usb.SpeedHigh,
		Manufacturer: "SanDisk",
		Product:      "Extreme SSD",
		SerialNumber: "4C530001201128",
		Interfaces: []*usb.Interface{{
			Number:   0,
			Class:    usb.ClassMassStorage,
			SubClass: usb.SubClassSCSI,
			Protocol: usb.ProtocolBulkOnly,
			Endpoints: []usb.Endpoint{
				{Address: 0x81, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 512},
				{Address: 0x02, Attributes: uint8(usb.TransferBulk), MaxPacketSize: 512},
			},
		}},
	}
}

// keyboardDesc is a boot-protocol HID keyboard.
func keyboardDesc(addr usb.Address) usb.Desc {
	return usb.Desc{
		Address:      addr,
		VendorID:     0x046d,
		ProductID:    0xc31c,
		Device:       0x6400,
		USBRelease:   0x0200,
		Class:        usb.ClassPerInterface,
		Speed:        usb.SpeedFull,
		Manufacturer: "Logitech",
		Product:      "USB Keyboard",
		Interfaces: []*usb.Interface{{
			Number:   0,
			Class:    usb.ClassHID,
			SubClass: usb.SubClassHIDBoot,
			Protocol: usb.ProtocolHIDKeyboard,
			Endpoints: []usb.Endpoint{
				{Address: 0x81, Attributes: uint8(usb.TransferInterrupt), MaxPacketSize: 8, Interval: 10},
			},
		}},
	}
}

// mouseDesc is a boot-protocol HID mouse.
func mouseDesc(addr usb.Address) usb.Desc {
	return usb.Desc{
		Address:      addr,
		VendorID:     0x046d,
		ProductID:    0xc077,
		Device:       0x7200,
		USBRelease:   0x0200,
		Class:        usb.ClassPerInterface,
		Speed:        usb.SpeedLow,
		Manufacturer: "Logitech",
		Product:      "USB Optical Mouse",
		Interfaces: []*usb.Interface{{
			Number:   0,
			Class:    usb.ClassHID,
			SubClass: usb.SubClassHIDBoot,
			Protocol: usb.ProtocolHIDMouse,
			Endpoints: []usb.Endpoint{
				{Address: 0x81, Attributes: uint8(usb.TransferInterrupt), MaxPacketSize: 4, Interval: 10},
			},
		}},
	}
}

// parseVIDPID parses a vendor:product pair of 4-digit hex values.
func parseVIDPID(s string) (uint16, uint16, bool) {
	v, p, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	vendor, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, 0, false
	}
	product, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return 0, 0, false
	}
	return uint16(vendor), uint16(product), true
}
