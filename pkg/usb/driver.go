package usb

import "context"

// Driver is the contract a device driver presents to the attachment
// layer.
//
// Probe either accepts responsibility for the offered device (nil) or
// declines it (ErrUnsupported, usually wrapped). A probe that declines
// must leave no side effects on the device. Any other error reports a
// genuine failure; the device stays unclaimed by this driver.
//
// Detach severs the driver from a device it previously claimed. It is
// invoked exactly once for every successful Probe, cannot fail, and
// must tolerate hardware that is already gone. Teardown problems are
// the driver's to log.
//
// Name returns the driver's identity. It must be non-empty, unique
// within a registry and stable for the driver's lifetime.
type Driver interface {
	Probe(ctx context.Context, dev *Device) error
	Detach(ctx context.Context, dev *Device)
	Name() string
}

// Targeter is an optional interface a Driver may implement to declare
// which devices it matches. Drivers without targets are wildcards and
// are offered every device.
type Targeter interface {
	Targets() []Target
}

// Target declares one device population a driver matches. Nil fields
// are wildcards. Vendor and product fields match descriptor identity;
// class fields match the device-level triple or, when the device
// defers to its interfaces (class 0x00), any interface triple.
type Target struct {
	VendorID  *uint16
	ProductID *uint16

	Class    *Class
	SubClass *SubClass
	Protocol *Protocol
}

// TargetDeviceID builds a target matching one exact vendor/product
// pair.
func TargetDeviceID(vendor, product uint16) Target {
	return Target{VendorID: &vendor, ProductID: &product}
}

// TargetVendor builds a target matching every product of one vendor.
func TargetVendor(vendor uint16) Target {
	return Target{VendorID: &vendor}
}

// TargetClass builds a target matching a class code.
func TargetClass(class Class) Target {
	return Target{Class: &class}
}

// TargetClassTriple builds a target matching a full class triple.
func TargetClassTriple(class Class, sub SubClass, proto Protocol) Target {
	return Target{Class: &class, SubClass: &sub, Protocol: &proto}
}

// Matches reports whether dev falls inside this target.
func (t Target) Matches(dev *Device) bool {
	if t.VendorID != nil && *t.VendorID != dev.VendorID() {
		return false
	}
	if t.ProductID != nil && *t.ProductID != dev.ProductID() {
		return false
	}
	if t.Class == nil && t.SubClass == nil && t.Protocol == nil {
		return true
	}
	if t.matchesTriple(dev.Class(), dev.SubClass(), dev.Protocol()) {
		return true
	}
	// Class 0 devices declare their classes per interface.
	if dev.Class() == ClassPerInterface {
		for _, intf := range dev.Interfaces() {
			if t.matchesTriple(intf.Class, intf.SubClass, intf.Protocol) {
				return true
			}
		}
	}
	return false
}

func (t Target) matchesTriple(c Class, s SubClass, p Protocol) bool {
	if t.Class != nil && *t.Class != c {
		return false
	}
	if t.SubClass != nil && *t.SubClass != s {
		return false
	}
	if t.Protocol != nil && *t.Protocol != p {
		return false
	}
	return true
}

// Specificity ranks how narrowly a target selects devices. Narrower
// targets are probed first; ties fall back to registration order.
type Specificity uint8

// Specificity tiers, narrowest first.
const (
	// SpecificityDevice is an exact vendor or vendor/product target.
	SpecificityDevice Specificity = iota

	// SpecificityClass is a class-based target.
	SpecificityClass

	// SpecificityWildcard accepts offers for every device.
	SpecificityWildcard
)

// String returns the tier name.
func (s Specificity) String() string {
	switch s {
	case SpecificityDevice:
		return "DEVICE"
	case SpecificityClass:
		return "CLASS"
	case SpecificityWildcard:
		return "WILDCARD"
	default:
		return "UNKNOWN"
	}
}

// Specificity returns the tier of this target.
func (t Target) Specificity() Specificity {
	if t.VendorID != nil || t.ProductID != nil {
		return SpecificityDevice
	}
	if t.Class != nil || t.SubClass != nil || t.Protocol != nil {
		return SpecificityClass
	}
	return SpecificityWildcard
}

// MatchSpecificity reports whether the driver matches the device and,
// if so, the narrowest tier among its matching targets. Drivers
// without targets, and Targeters declaring none, match everything at
// the wildcard tier.
func MatchSpecificity(d Driver, dev *Device) (Specificity, bool) {
	tg, ok := d.(Targeter)
	if !ok {
		return SpecificityWildcard, true
	}
	targets := tg.Targets()
	if len(targets) == 0 {
		return SpecificityWildcard, true
	}

	best := SpecificityWildcard
	matched := false
	for _, t := range targets {
		if !t.Matches(dev) {
			continue
		}
		if s := t.Specificity(); !matched || s < best {
			best = s
		}
		matched = true
	}
	if !matched {
		return SpecificityWildcard, false
	}
	return best, true
}

// DriverSpecificity returns the narrowest tier among a driver's
// declared targets, independent of any device. Used for listings.
func DriverSpecificity(d Driver) Specificity {
	tg, ok := d.(Targeter)
	if !ok {
		return SpecificityWildcard
	}
	best := SpecificityWildcard
	for _, t := range tg.Targets() {
		if s := t.Specificity(); s < best {
			best = s
		}
	}
	return best
}
