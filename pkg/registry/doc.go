// Package registry tracks the drivers eligible for device matching.
//
// Drivers register by name; names are unique and registration order is
// preserved. The attachment engine asks the registry which drivers to
// offer a newly arrived device, and the registry answers with an
// ordered candidate list.
//
// # Candidate Ordering
//
// Candidates are sorted by the specificity tier at which each driver
// matches the device:
//
//   - DEVICE: an exact vendor/product target matched
//   - CLASS: a class/subclass/protocol target matched
//   - WILDCARD: the driver declares no targets and takes all devices
//
// Within a tier, earlier registration wins. The engine offers
// candidates in this order and stops at the first successful probe.
//
// # Unregistration
//
// Unregister refuses with usb.ErrStillAttached while the driver holds
// any claim; detach its devices first (Engine.ReleaseDriver does the
// sweep). A probe already in flight when the driver is unregistered
// may finish, but [Candidate.Commit] then fails and the engine detaches
// instead of keeping the claim.
//
// The registry never holds its lock across probe or detach calls, so
// driver code cannot deadlock it.
package registry
