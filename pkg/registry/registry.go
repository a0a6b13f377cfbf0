package registry

import (
	"errors"
	"sync"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// ErrEmptyName is returned when registering a driver whose Name is empty.
var ErrEmptyName = errors.New("driver name is empty")

// Registry holds the set of drivers eligible for matching.
// It preserves registration order, which breaks ties between drivers
// that match a device at the same specificity tier.
type Registry struct {
	mu sync.RWMutex

	// entries holds all registered drivers keyed by driver name.
	entries map[string]*entry

	// order holds the same entries in registration order.
	order []*entry

	journal log.Logger
}

// entry is one registered driver plus its attachment bookkeeping.
type entry struct {
	driver usb.Driver

	// attachments counts devices currently claimed by this driver.
	// Unregister refuses while any claim is live.
	attachments int

	// unregistered marks an entry that was removed while candidate
	// snapshots may still reference it. Commit fails against it.
	unregistered bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		journal: log.NoopLogger{},
	}
}

// SetJournal routes registry events to j. Pass nil to disable journaling.
func (r *Registry) SetJournal(j log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j == nil {
		j = log.NoopLogger{}
	}
	r.journal = j
}

// Register adds a driver to the registry.
// Returns usb.ErrDuplicateName if a driver with the same name is
// already registered. Registration is never retroactive: devices that
// already finished a matching pass keep their outcome until something
// triggers a new pass.
func (r *Registry) Register(d usb.Driver) error {
	name := d.Name()
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return usb.ErrDuplicateName
	}

	e := &entry{driver: d}
	r.entries[name] = e
	r.order = append(r.order, e)

	event := log.NewEvent(log.CategoryRegistry)
	event.Driver = name
	event.Registry = &log.RegistryEvent{Op: log.RegistryOpRegister, Drivers: len(r.order)}
	r.journal.Log(event)

	return nil
}

// Unregister removes a driver by name.
// Returns usb.ErrNotRegistered if no such driver exists and
// usb.ErrStillAttached while the driver holds any claim; callers must
// detach the driver's devices first. A probe of the removed driver
// that is already in flight may still run to completion, but its
// claim will not commit.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[name]
	if !exists {
		return usb.ErrNotRegistered
	}
	if e.attachments > 0 {
		return usb.ErrStillAttached
	}

	e.unregistered = true
	delete(r.entries, name)
	for i, o := range r.order {
		if o == e {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	event := log.NewEvent(log.CategoryRegistry)
	event.Driver = name
	event.Registry = &log.RegistryEvent{Op: log.RegistryOpUnregister, Drivers: len(r.order)}
	r.journal.Log(event)

	return nil
}

// Get returns a registered driver by name.
func (r *Registry) Get(name string) (usb.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.driver, true
}

// Has returns true if a driver with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[name]
	return exists
}

// Names returns the registered driver names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, e := range r.order {
		names = append(names, e.driver.Name())
	}
	return names
}

// Len returns the number of registered drivers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Attachments returns the number of devices currently claimed by the
// named driver. Unknown names report zero.
func (r *Registry) Attachments(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, exists := r.entries[name]; exists {
		return e.attachments
	}
	return 0
}

// ReleaseAttachment drops one claim held by the named driver,
// unblocking Unregister once the count reaches zero. Called by the
// attachment engine after a detach completes.
func (r *Registry) ReleaseAttachment(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.entries[name]; exists && e.attachments > 0 {
		e.attachments--
	}
}
