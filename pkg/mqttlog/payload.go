package mqttlog

import (
	"fmt"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// payload is the JSON wire form of a journal event. Enums are spelled
// out as names and identifiers as hex so the feed reads without this
// module's type tables.
type payload struct {
	Timestamp string `json:"timestamp"`
	EventID   string `json:"event_id"`
	Category  string `json:"category"`
	DeviceID  string `json:"device_id,omitempty"`
	Driver    string `json:"driver,omitempty"`
	Bus       *uint8 `json:"bus,omitempty"`

	Device   *devicePayload   `json:"device,omitempty"`
	Probe    *probePayload    `json:"probe,omitempty"`
	Attach   *attachPayload   `json:"attach,omitempty"`
	Registry *registryPayload `json:"registry,omitempty"`
}

type devicePayload struct {
	VendorID   string `json:"vendor_id"`
	ProductID  string `json:"product_id"`
	Class      string `json:"class"`
	Speed      string `json:"speed"`
	USBRelease string `json:"usb_release,omitempty"`
	Product    string `json:"product,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Interfaces int    `json:"interfaces,omitempty"`
}

type probePayload struct {
	Kind     string `json:"kind"`
	Attempt  int    `json:"attempt"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type attachPayload struct {
	Probes      int    `json:"probes"`
	Duration    string `json:"duration,omitempty"`
	Specificity string `json:"specificity,omitempty"`
}

type registryPayload struct {
	Op      string `json:"op"`
	Drivers int    `json:"drivers"`
}

func newPayload(event log.Event) payload {
	p := payload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		EventID:   event.EventID,
		Category:  event.Category.String(),
		DeviceID:  string(event.DeviceID),
		Driver:    event.Driver,
		Bus:       event.Bus,
	}
	if event.Device != nil {
		p.Device = newDevicePayload(event.Device)
	}
	if event.Probe != nil {
		p.Probe = &probePayload{
			Kind:     event.Probe.Kind.String(),
			Attempt:  event.Probe.Attempt,
			Error:    event.Probe.Error,
			Duration: formatDuration(event.Probe.Duration),
		}
	}
	if event.Attach != nil {
		p.Attach = &attachPayload{
			Probes:   event.Attach.Probes,
			Duration: formatDuration(event.Attach.Duration),
		}
		if event.Attach.Specificity != nil {
			p.Attach.Specificity = event.Attach.Specificity.String()
		}
	}
	if event.Registry != nil {
		p.Registry = &registryPayload{
			Op:      event.Registry.Op.String(),
			Drivers: event.Registry.Drivers,
		}
	}
	return p
}

func newDevicePayload(info *usb.DeviceInfo) *devicePayload {
	p := &devicePayload{
		VendorID:   fmt.Sprintf("%04x", info.VendorID),
		ProductID:  fmt.Sprintf("%04x", info.ProductID),
		Class:      info.Class.String(),
		Speed:      info.Speed.String(),
		Product:    info.Product,
		Serial:     info.SerialNumber,
		Interfaces: len(info.Interfaces),
	}
	if info.USBRelease != 0 {
		p.USBRelease = info.USBRelease.String()
	}
	return p
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
