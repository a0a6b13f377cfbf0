// Package simbus implements an in-memory bus source for development
// and testing.
//
// A Bus can be driven two ways. Programmatically, PlugDevice,
// UnplugDevice and ResetBus inject events directly; this is what the
// interactive monitor shell uses. Alternatively a Script replays a
// timed sequence of the same operations, which makes hotplug scenarios
// reproducible without hardware.
//
// # Scripts
//
// Scripts are YAML files. Offsets are Go duration strings measured
// from the start of playback, identifiers are hex with or without the
// 0x prefix, and classes may be given by name or code:
//
//	name: flash-drive-demo
//	steps:
//	  - at: 0s
//	    action: plug
//	    device:
//	      bus: 1
//	      port: "4.2"
//	      vendor_id: 0x0781
//	      product_id: 0x5583
//	      class: mass-storage
//	      subclass: 0x06
//	      protocol: 0x50
//	      speed: high
//	      product: Extreme SSD
//	  - at: 250ms
//	    action: unplug
//	    id: "1:4.2"
//	  - at: 300ms
//	    action: reset
//	    bus: 1
//
// Steps run in offset order regardless of file order. A device's
// interfaces and endpoints can be spelled out the same way when a
// driver's probe inspects them.
package simbus
