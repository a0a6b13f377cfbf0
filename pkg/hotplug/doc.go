// Package hotplug connects a bus event source to the attachment
// engine.
//
// The Orchestrator owns the table of present devices and a pool of
// event workers. Bus implementations (or tests) feed it through three
// entry points:
//
//	OnDeviceArrived(dev)  // enumerated device, ready for matching
//	OnDeviceRemoved(id)   // device left the bus
//	OnBusReset(bus)       // controller reset, everything on it is gone
//
// # Ordering
//
// Events for one device are processed strictly in arrival order: the
// device id is hashed to pick a worker, and a worker runs its queue
// serially. Removal work for a device therefore cannot overtake or
// interleave with its attach pass, no matter how many workers are
// configured. Events for different devices run concurrently when
// Workers > 1.
//
// # Removal
//
// Processing a removal detaches the claiming driver (if any), marks
// the device departed, drops it from the table, and finally invokes
// the OnRelease callback. After OnRelease the bus layer may recycle
// the device record; the orchestrator holds no reference. A device
// that reconnects is a fresh arrival with a fresh record, even when it
// lands on the same port and therefore the same id.
//
// # Backpressure
//
// Enqueueing never blocks. When a worker queue is full the event is
// dropped and the entry point returns ErrQueueFull; the bus layer
// chooses between retrying and resynchronizing via re-enumeration.
package hotplug
