package netlinkbus

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// DefaultSysfsRoot is where the kernel exposes enumerated USB devices.
const DefaultSysfsRoot = "/sys/bus/usb/devices"

// parseEntryName splits a sysfs device directory name like "1-4.2"
// into its bus number and port path. Root hubs ("usb1") and interface
// entries ("1-4.2:1.0") are not device entries.
func parseEntryName(name string) (usb.Address, error) {
	busPart, port, ok := strings.Cut(name, "-")
	if !ok || port == "" || strings.Contains(port, ":") {
		return usb.Address{}, fmt.Errorf("not a device entry: %q", name)
	}
	busNum, err := strconv.ParseUint(busPart, 10, 8)
	if err != nil {
		return usb.Address{}, fmt.Errorf("not a device entry: %q", name)
	}
	return usb.Address{Bus: uint8(busNum), Port: port}, nil
}

// Enumerate scans a sysfs device tree for USB devices already present
// on the bus. root is usually DefaultSysfsRoot. Entries that cannot be
// read are skipped; a device yanked mid-scan is not an error.
func Enumerate(root string) ([]usb.Desc, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	var descs []usb.Desc
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		desc, err := readDevice(root, name)
		if err != nil {
			continue
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

// readDevice reads one device's descriptor identity out of its sysfs
// directory. Vendor and product identifiers are required; everything
// else is best effort and reads as zero or empty when absent.
func readDevice(root, name string) (usb.Desc, error) {
	addr, err := parseEntryName(name)
	if err != nil {
		return usb.Desc{}, err
	}
	dir := filepath.Join(root, name)

	vendor, err := readAttrHex16(dir, "idVendor")
	if err != nil {
		return usb.Desc{}, err
	}
	product, err := readAttrHex16(dir, "idProduct")
	if err != nil {
		return usb.Desc{}, err
	}

	desc := usb.Desc{
		Address:   addr,
		VendorID:  vendor,
		ProductID: product,
	}

	if class, err := readAttrHex8(dir, "bDeviceClass"); err == nil {
		desc.Class = usb.Class(class)
	}
	if sub, err := readAttrHex8(dir, "bDeviceSubClass"); err == nil {
		desc.SubClass = usb.SubClass(sub)
	}
	if proto, err := readAttrHex8(dir, "bDeviceProtocol"); err == nil {
		desc.Protocol = usb.Protocol(proto)
	}
	if release, err := readAttrHex16(dir, "bcdDevice"); err == nil {
		desc.Device = usb.BCD(release)
	}
	if release, err := readAttrVersion(dir, "version"); err == nil {
		desc.USBRelease = release
	}
	if s, err := readAttr(dir, "speed"); err == nil {
		desc.Speed = parseSysfsSpeed(s)
	}
	desc.Manufacturer, _ = readAttr(dir, "manufacturer")
	desc.Product, _ = readAttr(dir, "product")
	desc.SerialNumber, _ = readAttr(dir, "serial")

	desc.Interfaces = readInterfaces(dir, name)
	return desc, nil
}

// readInterfaces collects the device's interface entries, the
// subdirectories named "<device>:<config>.<interface>".
func readInterfaces(dir, name string) []*usb.Interface {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var ifaces []*usb.Interface
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), name+":") {
			continue
		}
		ifacePath := filepath.Join(dir, entry.Name())
		number, err := readAttrHex8(ifacePath, "bInterfaceNumber")
		if err != nil {
			continue
		}
		iface := &usb.Interface{Number: number}
		if class, err := readAttrHex8(ifacePath, "bInterfaceClass"); err == nil {
			iface.Class = usb.Class(class)
		}
		if sub, err := readAttrHex8(ifacePath, "bInterfaceSubClass"); err == nil {
			iface.SubClass = usb.SubClass(sub)
		}
		if proto, err := readAttrHex8(ifacePath, "bInterfaceProtocol"); err == nil {
			iface.Protocol = usb.Protocol(proto)
		}
		iface.Endpoints = readEndpoints(ifacePath)
		ifaces = append(ifaces, iface)
	}
	return ifaces
}

// readEndpoints collects an interface's "ep_XX" entries.
func readEndpoints(dir string) []usb.Endpoint {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var endpoints []usb.Endpoint
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "ep_") {
			continue
		}
		epPath := filepath.Join(dir, entry.Name())
		addr, err := readAttrHex8(epPath, "bEndpointAddress")
		if err != nil {
			continue
		}
		ep := usb.Endpoint{Address: addr}
		if attrs, err := readAttrHex8(epPath, "bmAttributes"); err == nil {
			ep.Attributes = attrs
		}
		if size, err := readAttrHex16(epPath, "wMaxPacketSize"); err == nil {
			ep.MaxPacketSize = size
		}
		if interval, err := readAttrHex8(epPath, "bInterval"); err == nil {
			ep.Interval = interval
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints
}

// readAttr reads a sysfs attribute file as a trimmed string.
func readAttr(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readAttrHex16(dir, name string) (uint16, error) {
	s, err := readAttr(dir, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return uint16(n), nil
}

func readAttrHex8(dir, name string) (uint8, error) {
	s, err := readAttr(dir, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return uint8(n), nil
}

// readAttrVersion parses the space-padded dotted form of the version
// attribute, " 2.10", into its binary-coded-decimal value.
func readAttrVersion(dir, name string) (usb.BCD, error) {
	s, err := readAttr(dir, name)
	if err != nil {
		return 0, err
	}
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return 0, fmt.Errorf("attribute %s: malformed version %q", name, s)
	}
	hi, err := strconv.ParseUint(strings.TrimSpace(major), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: malformed version %q", name, s)
	}
	lo, err := strconv.ParseUint(minor, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: malformed version %q", name, s)
	}
	return usb.BCD(hi<<8 | lo), nil
}

// parseSysfsSpeed maps the speed attribute, megabits as a string, to
// the bus speed enum.
func parseSysfsSpeed(s string) usb.Speed {
	switch s {
	case "1.5":
		return usb.SpeedLow
	case "12":
		return usb.SpeedFull
	case "480":
		return usb.SpeedHigh
	case "5000", "10000", "20000":
		return usb.SpeedSuper
	default:
		return usb.SpeedUnknown
	}
}
