package netlinkbus

import (
	"bytes"
	"path"
	"strings"
)

// ueventAction is the kernel object action carried by a uevent.
type ueventAction uint8

const (
	ueventUnknown ueventAction = iota
	ueventAdd
	ueventRemove
	ueventChange
	ueventBind
	ueventUnbind
)

func parseAction(s string) ueventAction {
	switch s {
	case "add":
		return ueventAdd
	case "remove":
		return ueventRemove
	case "change":
		return ueventChange
	case "bind":
		return ueventBind
	case "unbind":
		return ueventUnbind
	default:
		return ueventUnknown
	}
}

// uevent is one parsed kernel uevent datagram.
type uevent struct {
	action    ueventAction
	devpath   string
	subsystem string
	devtype   string
	busnum    string
	devnum    string
}

// parseUEvent decodes a kernel uevent datagram. The wire format is a
// header line of the form "action@devpath" followed by KEY=value
// pairs, all null-separated. The source only joins the kernel
// broadcast group, so udev's rebroadcast format never shows up here.
func parseUEvent(data []byte) uevent {
	var ev uevent
	for _, line := range bytes.Split(data, []byte{0}) {
		if len(line) == 0 {
			continue
		}
		s := string(line)

		key, value, ok := strings.Cut(s, "=")
		if !ok {
			if action, devpath, ok := strings.Cut(s, "@"); ok {
				ev.action = parseAction(action)
				ev.devpath = devpath
			}
			continue
		}

		switch key {
		case "ACTION":
			ev.action = parseAction(value)
		case "DEVPATH":
			ev.devpath = value
		case "SUBSYSTEM":
			ev.subsystem = value
		case "DEVTYPE":
			ev.devtype = value
		case "BUSNUM":
			ev.busnum = value
		case "DEVNUM":
			ev.devnum = value
		}
	}
	return ev
}

// isDeviceEvent reports whether the uevent concerns a whole USB device
// rather than an interface or another subsystem's object.
func (ev uevent) isDeviceEvent() bool {
	return ev.subsystem == "usb" && ev.devtype == "usb_device"
}

// entryName returns the device's sysfs directory name, the last
// element of the devpath.
func (ev uevent) entryName() string {
	return path.Base(ev.devpath)
}
