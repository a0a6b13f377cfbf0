package registry

import (
	"sort"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Candidate is one driver offered to a device during a matching pass.
// The handle pins the underlying registry entry across the probe so
// that a concurrent Unregister cannot invalidate the bookkeeping;
// Commit then refuses to land a claim for a driver that was removed
// while its probe ran.
type Candidate struct {
	registry *Registry
	entry    *entry
	tier     usb.Specificity
}

// Driver returns the candidate's driver.
func (c *Candidate) Driver() usb.Driver {
	return c.entry.driver
}

// Name returns the candidate's driver name.
func (c *Candidate) Name() string {
	return c.entry.driver.Name()
}

// Specificity returns the tier at which the driver matched the device.
func (c *Candidate) Specificity() usb.Specificity {
	return c.tier
}

// Commit records a successful probe, counting one attachment against
// the driver. Returns usb.ErrNotRegistered if the driver was
// unregistered while the probe was in flight; the caller must then
// detach rather than keep the claim.
func (c *Candidate) Commit() error {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()

	if c.entry.unregistered {
		return usb.ErrNotRegistered
	}
	c.entry.attachments++
	return nil
}

// CandidatesFor returns the drivers to offer dev, most specific tier
// first, registration order within a tier. The slice is a snapshot:
// drivers registered or unregistered after the call do not alter it.
// The registry lock is not held across the caller's probe calls.
func (r *Registry) CandidatesFor(dev *usb.Device) []*Candidate {
	r.mu.RLock()
	snapshot := make([]*entry, len(r.order))
	copy(snapshot, r.order)
	r.mu.RUnlock()

	// Match outside the lock. Targets() is driver code and must not
	// run with registry state pinned.
	candidates := make([]*Candidate, 0, len(snapshot))
	for _, e := range snapshot {
		tier, ok := usb.MatchSpecificity(e.driver, dev)
		if !ok {
			continue
		}
		candidates = append(candidates, &Candidate{registry: r, entry: e, tier: tier})
	}

	// Stable sort keeps registration order within equal tiers.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].tier < candidates[j].tier
	})
	return candidates
}
