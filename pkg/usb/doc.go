// Package usb defines the device model and driver contract of the
// attachment layer.
//
// # Device Model
//
// A Device is a passive record of an attached USB device: its topology
// address, decoded descriptor identity (vendor/product, class triple,
// releases, strings) and interface layout. Devices perform no I/O and
// carry no bus handles; they exist so drivers can be matched against
// them and so ownership can be tracked while the hardware is present.
//
//	Device (1:4.2)
//	├── Interface 0 (mass-storage/scsi/bulk-only)
//	│   ├── Endpoint 0x81 BULK IN
//	│   └── Endpoint 0x02 BULK OUT
//	└── ...
//
// # Driver Contract
//
// A Driver hands the attachment layer three operations: Probe to accept
// or decline an offered device, Detach to sever a claim, and Name as
// its registry identity. Probe declines with ErrUnsupported, which is
// flow control rather than failure; any other error is a genuine fault.
// A declining probe must leave no side effects on the device.
//
// # Attachment Lifecycle
//
// Each device moves through a small state machine, guarded by a
// per-device mutex:
//
//	UNCLAIMED ──BeginProbe──▶ PROBING ──Claim──▶ ATTACHED
//	    ▲                        │                   │
//	    │                     EndProbe          ReleaseClaim
//	    │                        ▼                   │
//	    └─────BeginProbe──── NO_DRIVER ◀─────────────┘ (to UNCLAIMED)
//
// MarkDeparted moves any state to DEPARTED, which is terminal. Claim
// commits check the state they expect to replace, so a claim racing a
// removal fails instead of resurrecting a departed device.
//
// # Matching
//
// Drivers optionally implement Targeter to declare the devices they
// match. Targets are ranked by specificity: exact vendor/product
// targets outrank class targets, which outrank wildcards. Devices with
// class 0x00 defer class identity to their interfaces, so class targets
// are checked against interface triples for those devices.
package usb
