package hotplug

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/engine"
	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/registry"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

var (
	// ErrAlreadyStarted is returned when starting a running orchestrator.
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrNotStarted is returned when an event arrives before Start or
	// after Stop.
	ErrNotStarted = errors.New("orchestrator not started")

	// ErrQueueFull signals enqueue backpressure. The event is dropped;
	// the bus layer decides whether to retry or resynchronize.
	ErrQueueFull = errors.New("event queue full")

	// ErrUnknownDevice is returned for operations on a device id that
	// is not in the table.
	ErrUnknownDevice = errors.New("unknown device")
)

// eventKind discriminates queued device events.
type eventKind uint8

const (
	eventArrival eventKind = iota
	eventRemoval
	eventRescan
)

// deviceEvent is one queued unit of hotplug work.
type deviceEvent struct {
	kind eventKind
	dev  *usb.Device  // arrival, rescan
	id   usb.DeviceID // removal
}

// Orchestrator owns the device table and the serialization contract:
// all lifecycle work for one device runs on one worker, in the order
// the events arrived. Work for different devices may run in parallel
// when Workers > 1.
type Orchestrator struct {
	config   Config
	registry *registry.Registry
	engine   *engine.Engine

	mu sync.RWMutex

	// devices holds every device currently present, keyed by id.
	devices map[usb.DeviceID]*usb.Device

	// queues carries events to the workers; a device id is hashed to
	// pick its queue.
	queues []chan deviceEvent

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	// pending counts enqueued events not yet fully processed.
	pending atomic.Int64

	journal log.Logger
}

// New creates an orchestrator matching devices against reg.
func New(reg *registry.Registry, config Config) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Workers == 0 {
		config.Workers = 1
	}
	if config.QueueDepth == 0 {
		config.QueueDepth = 64
	}

	journal := config.Journal
	if journal == nil {
		journal = log.NoopLogger{}
	}

	e := engine.New(reg)
	e.SetJournal(journal)
	e.SetLogger(config.Logger)
	e.SetProbeTimeout(config.ProbeTimeout)

	return &Orchestrator{
		config:   config,
		registry: reg,
		engine:   e,
		devices:  make(map[usb.DeviceID]*usb.Device),
		journal:  journal,
	}, nil
}

// Registry returns the registry the orchestrator matches against.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Start launches the event workers. The context bounds in-flight
// probes and detaches; cancelling it stops the workers just as Stop
// does, but without resetting the running flag.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.running.Swap(true) {
		return ErrAlreadyStarted
	}

	o.ctx, o.cancel = context.WithCancel(ctx)
	o.pending.Store(0)
	o.queues = make([]chan deviceEvent, o.config.Workers)
	for i := range o.queues {
		o.queues[i] = make(chan deviceEvent, o.config.QueueDepth)
		o.wg.Add(1)
		go o.worker(o.queues[i])
	}
	return nil
}

// Stop cancels the workers and waits for them to exit. Events still
// queued are abandoned; call Drain first for an orderly shutdown.
func (o *Orchestrator) Stop() error {
	if !o.running.Swap(false) {
		return ErrNotStarted
	}

	o.cancel()
	o.wg.Wait()
	return nil
}

// OnDeviceArrived hands a newly enumerated device to the orchestrator.
// The matching pass runs asynchronously on the device's worker. The
// error reports delivery problems only (not started, queue full);
// duplicate ids are dropped by the worker with a warning.
func (o *Orchestrator) OnDeviceArrived(dev *usb.Device) error {
	return o.enqueue(dev.ID(), deviceEvent{kind: eventArrival, dev: dev})
}

// OnDeviceRemoved reports that the device with the given id left the
// bus. Detach work runs on the device's worker, after any arrival
// still queued for the same id. Unknown ids are a no-op.
func (o *Orchestrator) OnDeviceRemoved(id usb.DeviceID) error {
	return o.enqueue(id, deviceEvent{kind: eventRemoval, id: id})
}

// OnBusReset treats every device on the given bus as removed, in
// per-device order. The bus layer re-enumerates survivors as fresh
// arrivals afterwards.
func (o *Orchestrator) OnBusReset(bus uint8) error {
	if !o.running.Load() {
		return ErrNotStarted
	}

	o.mu.RLock()
	ids := make([]usb.DeviceID, 0)
	for id, dev := range o.devices {
		if dev.Address().Bus == bus {
			ids = append(ids, id)
		}
	}
	o.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	event := log.NewEvent(log.CategoryReset)
	event.Bus = &bus
	o.journal.Log(event)
	o.infoLog("bus reset", "bus", bus, "devices", len(ids))

	var firstErr error
	for _, id := range ids {
		if err := o.enqueue(id, deviceEvent{kind: eventRemoval, id: id}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Rescan queues a fresh matching pass for a parked device. The pass
// runs on the device's worker so it cannot race other lifecycle work.
func (o *Orchestrator) Rescan(id usb.DeviceID) error {
	o.mu.RLock()
	dev, exists := o.devices[id]
	o.mu.RUnlock()
	if !exists {
		return ErrUnknownDevice
	}
	return o.enqueue(id, deviceEvent{kind: eventRescan, dev: dev})
}

// DetachDriver sweeps the named driver off every device it claims and
// unregisters it. This is the module-unload path: after it returns,
// the driver is gone from the registry and its former devices sit
// unclaimed until a rescan or reconnect.
func (o *Orchestrator) DetachDriver(ctx context.Context, name string) error {
	if !o.registry.Has(name) {
		return usb.ErrNotRegistered
	}
	o.engine.ReleaseDriver(ctx, name, o.Devices())
	return o.registry.Unregister(name)
}

// Device returns the present device with the given id.
func (o *Orchestrator) Device(id usb.DeviceID) (*usb.Device, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	dev, exists := o.devices[id]
	return dev, exists
}

// Devices returns a snapshot of every device currently present,
// ordered by id.
func (o *Orchestrator) Devices() []*usb.Device {
	o.mu.RLock()
	devs := make([]*usb.Device, 0, len(o.devices))
	for _, dev := range o.devices {
		devs = append(devs, dev)
	}
	o.mu.RUnlock()

	sort.Slice(devs, func(i, j int) bool { return devs[i].ID() < devs[j].ID() })
	return devs
}

// Attached returns the present devices currently claimed by a driver,
// ordered by id.
func (o *Orchestrator) Attached() []*usb.Device {
	all := o.Devices()
	attached := all[:0]
	for _, dev := range all {
		if dev.State() == usb.StateAttached {
			attached = append(attached, dev)
		}
	}
	return attached
}

// DeviceCount returns the number of devices currently present.
func (o *Orchestrator) DeviceCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.devices)
}

// Drain blocks until every queued event has been processed. Intended
// for tests and for sequencing an orderly shutdown before Stop.
func (o *Orchestrator) Drain() {
	for o.pending.Load() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// enqueue routes an event to the worker owning the device id.
func (o *Orchestrator) enqueue(id usb.DeviceID, ev deviceEvent) error {
	if !o.running.Load() {
		return ErrNotStarted
	}

	queue := o.queues[o.workerFor(id)]
	o.pending.Add(1)
	select {
	case queue <- ev:
		return nil
	default:
		o.pending.Add(-1)
		return ErrQueueFull
	}
}

// workerFor hashes a device id to its worker index. Every event for
// one device lands on the same worker, which is what preserves
// per-device ordering.
func (o *Orchestrator) workerFor(id usb.DeviceID) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(o.queues)))
}

// worker processes one queue until the orchestrator stops.
func (o *Orchestrator) worker(queue chan deviceEvent) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case ev := <-queue:
			o.process(ev)
			o.pending.Add(-1)
		}
	}
}

func (o *Orchestrator) process(ev deviceEvent) {
	switch ev.kind {
	case eventArrival:
		o.processArrival(ev.dev)
	case eventRemoval:
		o.processRemoval(ev.id)
	case eventRescan:
		o.processRescan(ev.dev)
	}
}

// processArrival records the device and runs its matching pass.
func (o *Orchestrator) processArrival(dev *usb.Device) {
	id := dev.ID()

	o.mu.Lock()
	if _, exists := o.devices[id]; exists {
		o.mu.Unlock()
		// The bus layer promises exactly-once arrivals; defend anyway.
		o.warnLog("duplicate arrival dropped", "device_id", string(id))
		return
	}
	o.devices[id] = dev
	o.mu.Unlock()

	event := log.NewEvent(log.CategoryArrival)
	event.DeviceID = id
	event.Device = dev.Info()
	o.journal.Log(event)

	o.debugLog("device arrived",
		"device_id", string(id),
		"product", dev.Product(),
		"class", dev.Class().String())

	if err := o.engine.Attach(o.ctx, dev); err != nil {
		if errors.Is(err, usb.ErrDeviceDeparted) {
			o.debugLog("device departed during attach", "device_id", string(id))
			return
		}
		o.warnLog("attach pass failed", "device_id", string(id), "error", err)
	}
}

// processRemoval detaches the device's driver, marks it departed, and
// drops the record.
func (o *Orchestrator) processRemoval(id usb.DeviceID) {
	o.mu.RLock()
	dev, exists := o.devices[id]
	o.mu.RUnlock()
	if !exists {
		return
	}

	event := log.NewEvent(log.CategoryRemoval)
	event.DeviceID = id
	o.journal.Log(event)

	o.engine.Detach(o.ctx, dev)
	dev.MarkDeparted()

	o.mu.Lock()
	delete(o.devices, id)
	o.mu.Unlock()

	o.debugLog("device removed", "device_id", string(id))

	if o.config.OnRelease != nil {
		o.config.OnRelease(dev)
	}
}

func (o *Orchestrator) processRescan(dev *usb.Device) {
	if err := o.engine.Rescan(o.ctx, dev); err != nil {
		o.warnLog("rescan failed", "device_id", string(dev.ID()), "error", err)
	}
}

// debugLog logs a debug message if logging is enabled.
func (o *Orchestrator) debugLog(msg string, args ...any) {
	if o.config.Logger != nil {
		o.config.Logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) infoLog(msg string, args ...any) {
	if o.config.Logger != nil {
		o.config.Logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warnLog(msg string, args ...any) {
	if o.config.Logger != nil {
		o.config.Logger.Warn(msg, args...)
	}
}
