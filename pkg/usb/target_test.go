package usb

import (
	"context"
	"testing"
)

// fakeDriver implements Driver without targets (a wildcard).
type fakeDriver struct {
	name    string
	probeFn func(ctx context.Context, dev *Device) error
}

func (d *fakeDriver) Probe(ctx context.Context, dev *Device) error {
	if d.probeFn != nil {
		return d.probeFn(ctx, dev)
	}
	return nil
}

func (d *fakeDriver) Detach(ctx context.Context, dev *Device) {}

func (d *fakeDriver) Name() string { return d.name }

// targetedDriver adds declared targets on top of fakeDriver.
type targetedDriver struct {
	fakeDriver
	targets []Target
}

func (d *targetedDriver) Targets() []Target { return d.targets }

func massStorageDevice() *Device {
	return NewDevice(Desc{
		Address:   Address{Bus: 1, Port: "1"},
		VendorID:  0x0781,
		ProductID: 0x5583,
		Class:     ClassMassStorage,
		SubClass:  SubClassSCSI,
		Protocol:  ProtocolBulkOnly,
	})
}

func compositeHIDDevice() *Device {
	return NewDevice(Desc{
		Address:   Address{Bus: 1, Port: "2"},
		VendorID:  0x046d,
		ProductID: 0xc31c,
		Class:     ClassPerInterface,
		Interfaces: []*Interface{
			{Number: 0, Class: ClassHID, SubClass: SubClassHIDBoot, Protocol: ProtocolHIDKeyboard},
			{Number: 1, Class: ClassHID, Protocol: ProtocolHIDMouse},
		},
	})
}

func TestTargetMatches(t *testing.T) {
	storage := massStorageDevice()
	keyboard := compositeHIDDevice()

	tests := []struct {
		name   string
		target Target
		dev    *Device
		want   bool
	}{
		{"exact id", TargetDeviceID(0x0781, 0x5583), storage, true},
		{"wrong product", TargetDeviceID(0x0781, 0x9999), storage, false},
		{"wrong vendor", TargetDeviceID(0x1234, 0x5583), storage, false},
		{"vendor only", TargetVendor(0x0781), storage, true},
		{"device class", TargetClass(ClassMassStorage), storage, true},
		{"wrong class", TargetClass(ClassHID), storage, false},
		{"class triple", TargetClassTriple(ClassMassStorage, SubClassSCSI, ProtocolBulkOnly), storage, true},
		{"triple wrong protocol", TargetClassTriple(ClassMassStorage, SubClassSCSI, 0x01), storage, false},
		{"wildcard", Target{}, storage, true},

		// Class 0 devices match class targets through their interfaces.
		{"interface class", TargetClass(ClassHID), keyboard, true},
		{"interface triple", TargetClassTriple(ClassHID, SubClassHIDBoot, ProtocolHIDKeyboard), keyboard, true},
		{"interface wrong class", TargetClass(ClassMassStorage), keyboard, false},
		{"id and interface class", Target{
			VendorID: ptr16(0x046d),
			Class:    ptrClass(ClassHID),
		}, keyboard, true},
		{"id mismatch blocks interface class", Target{
			VendorID: ptr16(0x9999),
			Class:    ptrClass(ClassHID),
		}, keyboard, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.Matches(tt.dev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetSpecificity(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   Specificity
	}{
		{"exact id", TargetDeviceID(1, 2), SpecificityDevice},
		{"vendor only", TargetVendor(1), SpecificityDevice},
		{"class", TargetClass(ClassHID), SpecificityClass},
		{"triple", TargetClassTriple(ClassHID, 1, 1), SpecificityClass},
		{"empty", Target{}, SpecificityWildcard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.Specificity(); got != tt.want {
				t.Errorf("Specificity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchSpecificity(t *testing.T) {
	storage := massStorageDevice()

	t.Run("NoTargeter", func(t *testing.T) {
		spec, ok := MatchSpecificity(&fakeDriver{name: "any"}, storage)
		if !ok || spec != SpecificityWildcard {
			t.Errorf("expected wildcard match, got %v/%v", spec, ok)
		}
	})

	t.Run("EmptyTargets", func(t *testing.T) {
		drv := &targetedDriver{fakeDriver: fakeDriver{name: "empty"}}
		spec, ok := MatchSpecificity(drv, storage)
		if !ok || spec != SpecificityWildcard {
			t.Errorf("expected wildcard match, got %v/%v", spec, ok)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		drv := &targetedDriver{
			fakeDriver: fakeDriver{name: "hid"},
			targets:    []Target{TargetClass(ClassHID)},
		}
		if _, ok := MatchSpecificity(drv, storage); ok {
			t.Error("expected no match")
		}
	})

	t.Run("BestMatchingTierWins", func(t *testing.T) {
		// Both targets match; the exact id target is narrower.
		drv := &targetedDriver{
			fakeDriver: fakeDriver{name: "both"},
			targets: []Target{
				TargetClass(ClassMassStorage),
				TargetDeviceID(0x0781, 0x5583),
			},
		}
		spec, ok := MatchSpecificity(drv, storage)
		if !ok || spec != SpecificityDevice {
			t.Errorf("expected DEVICE tier, got %v/%v", spec, ok)
		}
	})

	t.Run("OnlyMatchingTargetsCount", func(t *testing.T) {
		// The id target misses, so only the class tier applies.
		drv := &targetedDriver{
			fakeDriver: fakeDriver{name: "mixed"},
			targets: []Target{
				TargetDeviceID(0x9999, 0x9999),
				TargetClass(ClassMassStorage),
			},
		}
		spec, ok := MatchSpecificity(drv, storage)
		if !ok || spec != SpecificityClass {
			t.Errorf("expected CLASS tier, got %v/%v", spec, ok)
		}
	})
}

func TestDriverSpecificity(t *testing.T) {
	tests := []struct {
		name   string
		driver Driver
		want   Specificity
	}{
		{"no targeter", &fakeDriver{name: "a"}, SpecificityWildcard},
		{"class target", &targetedDriver{
			fakeDriver: fakeDriver{name: "b"},
			targets:    []Target{TargetClass(ClassHID)},
		}, SpecificityClass},
		{"mixed targets", &targetedDriver{
			fakeDriver: fakeDriver{name: "c"},
			targets:    []Target{TargetClass(ClassHID), TargetDeviceID(1, 2)},
		}, SpecificityDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DriverSpecificity(tt.driver); got != tt.want {
				t.Errorf("DriverSpecificity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpecificityString(t *testing.T) {
	tests := []struct {
		spec Specificity
		want string
	}{
		{SpecificityDevice, "DEVICE"},
		{SpecificityClass, "CLASS"},
		{SpecificityWildcard, "WILDCARD"},
		{Specificity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.spec.String(); got != tt.want {
			t.Errorf("Specificity(%d).String() = %s, want %s", tt.spec, got, tt.want)
		}
	}
}

func ptr16(v uint16) *uint16 { return &v }

func ptrClass(c Class) *Class { return &c }
