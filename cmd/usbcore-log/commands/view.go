// Package commands implements the usbcore-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Category *log.Category
	DeviceID string
	Driver   string
}

// matches returns true if the event satisfies all view filter criteria.
func (f ViewFilter) matches(event log.Event) bool {
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.DeviceID != "" && event.DeviceID != usb.DeviceID(f.DeviceID) {
		return false
	}
	if f.Driver != "" && event.Driver != f.Driver {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [subject] CATEGORY driver
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	subject := string(event.DeviceID)
	if subject == "" && event.Bus != nil {
		subject = fmt.Sprintf("bus:%d", *event.Bus)
	}
	if subject == "" {
		subject = "-"
	}

	if event.Driver != "" {
		fmt.Fprintf(w, "%s [%s] %s %s\n", ts, subject, event.Category.String(), event.Driver)
	} else {
		fmt.Fprintf(w, "%s [%s] %s\n", ts, subject, event.Category.String())
	}

	// Category-specific details
	switch {
	case event.Device != nil:
		formatDeviceDetails(w, event.Device)
	case event.Probe != nil:
		formatProbeDetails(w, event.Probe)
	case event.Attach != nil:
		formatAttachDetails(w, event.Attach)
	case event.Registry != nil:
		formatRegistryDetails(w, event.Registry)
	}

	fmt.Fprintln(w) // Blank line between events
}

// formatDeviceDetails writes arrival descriptor details.
func formatDeviceDetails(w io.Writer, info *usb.DeviceInfo) {
	fmt.Fprintf(w, "  Device: %04x:%04x %s %s\n",
		info.VendorID, info.ProductID, info.Class.String(), info.Speed.String())
	if info.Product != "" {
		name := info.Product
		if info.Manufacturer != "" {
			name = info.Manufacturer + " " + name
		}
		fmt.Fprintf(w, "  Name: %s\n", name)
	}
	if info.SerialNumber != "" {
		fmt.Fprintf(w, "  Serial: %s\n", info.SerialNumber)
	}
	for _, intf := range info.Interfaces {
		fmt.Fprintf(w, "  Interface %d: %s/%02x/%02x (%d endpoints)\n",
			intf.Number, intf.Class.String(), uint8(intf.SubClass), uint8(intf.Protocol), intf.Endpoints)
	}
}

// formatProbeDetails writes probe failure details.
func formatProbeDetails(w io.Writer, probe *log.ProbeEvent) {
	fmt.Fprintf(w, "  Kind: %s\n", probe.Kind.String())
	fmt.Fprintf(w, "  Attempt: %d\n", probe.Attempt)
	if probe.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", probe.Error)
	}
	if probe.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(probe.Duration))
	}
}

// formatAttachDetails writes matching pass details.
func formatAttachDetails(w io.Writer, attach *log.AttachEvent) {
	fmt.Fprintf(w, "  Probes: %d\n", attach.Probes)
	if attach.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(attach.Duration))
	}
	if attach.Specificity != nil {
		fmt.Fprintf(w, "  Specificity: %s\n", attach.Specificity.String())
	}
}

// formatRegistryDetails writes registry mutation details.
func formatRegistryDetails(w io.Writer, reg *log.RegistryEvent) {
	fmt.Fprintf(w, "  Op: %s\n", reg.Op.String())
	fmt.Fprintf(w, "  Drivers: %d\n", reg.Drivers)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseCategoryFlag parses a category string from a command-line flag
// (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	c, ok := log.ParseCategory(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be arrival, removal, claim, no_driver, probe_failure, detach, registry, or reset)", s)
	}
	return c, nil
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		if !filter.matches(event) {
			continue
		}

		formatEvent(output, event)
	}

	return nil
}
