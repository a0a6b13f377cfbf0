// Package engine implements the device/driver matching and attachment
// pass.
//
// When a device arrives, the engine asks the registry for candidates,
// offers the device to each in order, and commits the first driver
// whose Probe accepts. Later candidates never run. A probe that
// declines (usb.ErrUnsupported) is skipped quietly; a probe that fails
// with any other error is journaled and skipped. If every candidate
// passes, the device parks in usb.StateNoDriver until a rescan or a
// reconnect triggers a fresh pass.
//
// # Failure Is Not Special
//
// A device without a driver is a normal, stable outcome. Attach
// returns nil for it; the error return is reserved for pass-level
// interruptions such as the device departing mid-probe.
//
// # Serialization
//
// The engine is synchronous and owns no goroutines. Callers must not
// run two passes for the same device concurrently; the hotplug
// orchestrator guarantees this by routing each device's events to one
// worker. Passes for different devices may run in parallel.
package engine
