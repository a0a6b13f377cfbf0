// Package examples provides reference driver implementations for the
// attachment layer.
//
// The drivers show the three matching styles a real driver picks from:
//   - MassStorageDriver: class target with a protocol check in Probe
//   - HIDDriver: class target that inspects interface detail
//   - VendorToolDriver: exact vendor/product identity target
//
// They also demonstrate the probe contract. A device outside a
// driver's support is declined by wrapping usb.ErrUnsupported, which
// quietly passes the walk to the next candidate; a device the driver
// wants but cannot take, like one past VendorToolDriver's attachment
// cap, fails with a real error that lands in the journal.
//
// These drivers keep only bookkeeping state. They can serve as
// templates for drivers that perform real device I/O.
package examples
