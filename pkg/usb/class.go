package usb

import "fmt"

// Class is a USB class code.
type Class uint8

// SubClass is a USB subclass code. Its meaning depends on the class.
type SubClass uint8

// Protocol is a USB protocol code. Its meaning depends on the class
// and subclass.
type Protocol uint8

// Standard class codes.
const (
	// ClassPerInterface defers class identity to the interfaces.
	ClassPerInterface Class = 0x00

	ClassAudio       Class = 0x01
	ClassComm        Class = 0x02
	ClassHID         Class = 0x03
	ClassPhysical    Class = 0x05
	ClassImage       Class = 0x06
	ClassPrinter     Class = 0x07
	ClassMassStorage Class = 0x08
	ClassHub         Class = 0x09
	ClassData        Class = 0x0a
	ClassSmartCard   Class = 0x0b
	ClassSecurity    Class = 0x0d
	ClassVideo       Class = 0x0e
	ClassHealthcare  Class = 0x0f
	ClassAudioVideo  Class = 0x10
	ClassBillboard   Class = 0x11
	ClassBridge      Class = 0x12
	ClassDiagnostic  Class = 0xdc
	ClassWireless    Class = 0xe0
	ClassMisc        Class = 0xef
	ClassApplication Class = 0xfe
	ClassVendor      Class = 0xff
)

var classNames = map[Class]string{
	ClassPerInterface: "per-interface",
	ClassAudio:        "audio",
	ClassComm:         "communications",
	ClassHID:          "hid",
	ClassPhysical:     "physical",
	ClassImage:        "image",
	ClassPrinter:      "printer",
	ClassMassStorage:  "mass-storage",
	ClassHub:          "hub",
	ClassData:         "cdc-data",
	ClassSmartCard:    "smart-card",
	ClassSecurity:     "content-security",
	ClassVideo:        "video",
	ClassHealthcare:   "personal-healthcare",
	ClassAudioVideo:   "audio-video",
	ClassBillboard:    "billboard",
	ClassBridge:       "type-c-bridge",
	ClassDiagnostic:   "diagnostic",
	ClassWireless:     "wireless",
	ClassMisc:         "miscellaneous",
	ClassApplication:  "application-specific",
	ClassVendor:       "vendor-specific",
}

// String returns the class name, or the hex code if unknown.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint8(c))
}

// ParseClass resolves a class name as produced by String. Numeric
// forms are not accepted here; callers wanting those parse the code
// themselves.
func ParseClass(name string) (Class, bool) {
	for c, n := range classNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Mass storage subclass and protocol codes.
const (
	SubClassSCSI     SubClass = 0x06
	ProtocolBulkOnly Protocol = 0x50
)

// HID subclass and protocol codes.
const (
	SubClassHIDBoot     SubClass = 0x01
	ProtocolHIDKeyboard Protocol = 0x01
	ProtocolHIDMouse    Protocol = 0x02
)

// Speed is the negotiated bus speed of a device.
type Speed uint8

// Bus speeds.
const (
	SpeedUnknown Speed = iota
	SpeedLow
	SpeedFull
	SpeedHigh
	SpeedSuper
)

// String returns the speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "low"
	case SpeedFull:
		return "full"
	case SpeedHigh:
		return "high"
	case SpeedSuper:
		return "super"
	default:
		return "unknown"
	}
}

// ParseSpeed resolves a speed name as produced by String.
func ParseSpeed(name string) (Speed, bool) {
	for s := SpeedUnknown; s <= SpeedSuper; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return SpeedUnknown, false
}

// BCD is a binary-coded-decimal version number. A USB release of
// 0x0210 renders as "2.10".
type BCD uint16

// String returns the dotted decimal form of the version.
func (v BCD) String() string {
	return fmt.Sprintf("%x.%02x", uint16(v>>8), uint16(v&0xff))
}
