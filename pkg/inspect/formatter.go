// Package inspect renders device records as human-readable text for
// shells and diagnostic tools.
package inspect

import (
	"fmt"
	"strings"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowEndpoints includes endpoint rows under each interface.
	ShowEndpoints bool

	// ShowCodes includes raw class and protocol codes alongside names.
	ShowCodes bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowEndpoints: true,
		ShowCodes:     false,
		IndentWidth:   2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	indent := strings.Repeat(" ", depth*width)
	return indent + content
}

// FormatDevice renders the full detail tree of a device: identity,
// descriptor summary, attachment state, and the interface topology.
func (f *Formatter) FormatDevice(dev *usb.Device) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Device %s: %s\n", dev.ID(), deviceTitle(dev)))
	sb.WriteString(f.Indent(1, fmt.Sprintf("Identity: %04x:%04x", dev.VendorID(), dev.ProductID())))
	if rev := dev.DeviceRelease(); rev != 0 {
		sb.WriteString(fmt.Sprintf("  rev %s", rev))
	}
	if serial := dev.SerialNumber(); serial != "" {
		sb.WriteString(fmt.Sprintf("  serial %s", serial))
	}
	sb.WriteString("\n")

	sb.WriteString(f.Indent(1, fmt.Sprintf("Class:    %s\n",
		f.formatTriple(dev.Class(), dev.SubClass(), dev.Protocol()))))

	speed := dev.Speed().String()
	if rel := dev.USBRelease(); rel != 0 {
		speed += fmt.Sprintf("  (USB %s)", rel)
	}
	sb.WriteString(f.Indent(1, fmt.Sprintf("Speed:    %s\n", speed)))

	state := dev.State().String()
	if drv, ok := dev.ClaimedBy(); ok {
		state += fmt.Sprintf(" by %s", drv.Name())
	}
	sb.WriteString(f.Indent(1, fmt.Sprintf("State:    %s\n", state)))

	for _, intf := range dev.Interfaces() {
		sb.WriteString(f.FormatInterface(intf, 1))
	}

	return sb.String()
}

// FormatInterface renders one interface and, when ShowEndpoints is
// set, its endpoints.
func (f *Formatter) FormatInterface(intf *usb.Interface, depth int) string {
	var sb strings.Builder

	header := fmt.Sprintf("Interface %d", intf.Number)
	if intf.Alternate != 0 {
		header += fmt.Sprintf(".%d", intf.Alternate)
	}
	header += fmt.Sprintf(": %s", f.formatTriple(intf.Class, intf.SubClass, intf.Protocol))
	sb.WriteString(f.Indent(depth, header) + "\n")

	if !f.ShowEndpoints {
		return sb.String()
	}
	for _, ep := range intf.Endpoints {
		sb.WriteString(f.Indent(depth+1, FormatEndpoint(ep)) + "\n")
	}
	return sb.String()
}

// FormatDeviceList renders one summary line per device, aligned for
// terminal listings. Devices keep the order they were given in.
func (f *Formatter) FormatDeviceList(devs []*usb.Device) string {
	if len(devs) == 0 {
		return "(no devices)\n"
	}

	var sb strings.Builder
	for _, dev := range devs {
		driver := "-"
		if drv, ok := dev.ClaimedBy(); ok {
			driver = drv.Name()
		}
		sb.WriteString(fmt.Sprintf("%-10s %04x:%04x  %-14s %-6s %-10s %s\n",
			dev.ID(), dev.VendorID(), dev.ProductID(),
			dev.Class().String(), dev.Speed().String(),
			dev.State().String(), driver))
		if title := deviceTitle(dev); title != "" {
			sb.WriteString(fmt.Sprintf("           %s\n", title))
		}
	}
	return sb.String()
}

// FormatEndpoint renders one endpoint descriptor line.
func FormatEndpoint(ep usb.Endpoint) string {
	line := fmt.Sprintf("Endpoint 0x%02x: %s %s, %d bytes",
		ep.Address, ep.TransferType(), ep.Direction(), ep.MaxPacketSize)
	if ep.Interval != 0 {
		line += fmt.Sprintf(", interval %d", ep.Interval)
	}
	return line
}

// formatTriple renders a class triple as its name, with the raw codes
// appended when ShowCodes is set.
func (f *Formatter) formatTriple(c usb.Class, s usb.SubClass, p usb.Protocol) string {
	if !f.ShowCodes {
		return c.String()
	}
	return fmt.Sprintf("%s (%02x/%02x/%02x)", c, uint8(c), uint8(s), uint8(p))
}

// deviceTitle joins the manufacturer and product strings; either may
// be absent on cheap hardware.
func deviceTitle(dev *usb.Device) string {
	switch {
	case dev.Manufacturer() != "" && dev.Product() != "":
		return dev.Manufacturer() + " " + dev.Product()
	case dev.Product() != "":
		return dev.Product()
	default:
		return dev.Manufacturer()
	}
}
