package hotplug

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/registry"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// scriptDriver is a configurable driver for orchestrator tests. The
// counters are atomic because workers may run probes in parallel.
type scriptDriver struct {
	name    string
	targets []usb.Target
	probeFn func(ctx context.Context, dev *usb.Device) error

	probes   atomic.Int32
	detaches atomic.Int32
}

func (d *scriptDriver) Probe(ctx context.Context, dev *usb.Device) error {
	d.probes.Add(1)
	if d.probeFn != nil {
		return d.probeFn(ctx, dev)
	}
	return nil
}

func (d *scriptDriver) Detach(ctx context.Context, dev *usb.Device) { d.detaches.Add(1) }
func (d *scriptDriver) Name() string                                { return d.name }
func (d *scriptDriver) Targets() []usb.Target                       { return d.targets }

// journalRecorder captures journal events for assertions.
type journalRecorder struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *journalRecorder) Log(event log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *journalRecorder) categories() []log.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	cats := make([]log.Category, 0, len(r.events))
	for _, e := range r.events {
		cats = append(cats, e.Category)
	}
	return cats
}

func (r *journalRecorder) find(category log.Category) (log.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Category == category {
			return e, true
		}
	}
	return log.Event{}, false
}

// deviceAt builds a mass storage device on the given bus and port.
func deviceAt(bus uint8, port string) *usb.Device {
	return usb.NewDevice(usb.Desc{
		Address:   usb.Address{Bus: bus, Port: port},
		VendorID:  0x0781,
		ProductID: 0x5583,
		Class:     usb.ClassMassStorage,
		SubClass:  usb.SubClassSCSI,
		Protocol:  usb.ProtocolBulkOnly,
		Speed:     usb.SpeedHigh,
		Product:   "Extreme SSD",
	})
}

// newTestOrchestrator builds and starts an orchestrator with a journal
// recorder wired in. config.Journal is overwritten.
func newTestOrchestrator(t *testing.T, config Config) (*Orchestrator, *registry.Registry, *journalRecorder) {
	t.Helper()

	reg := registry.New()
	recorder := &journalRecorder{}
	config.Journal = recorder

	o, err := New(reg, config)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Stop() })

	return o, reg, recorder
}

// waitForState polls until the device reaches the expected state.
func waitForState(dev *usb.Device, want usb.AttachState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if dev.State() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// ===========================================================================
// Lifecycle
// ===========================================================================

func TestOrchestrator_StartStop(t *testing.T) {
	o, err := New(registry.New(), Config{})
	require.NoError(t, err)

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, o.Stop())
	assert.ErrorIs(t, o.Stop(), ErrNotStarted)
}

func TestOrchestrator_EventsRequireStart(t *testing.T) {
	o, err := New(registry.New(), Config{})
	require.NoError(t, err)

	assert.ErrorIs(t, o.OnDeviceArrived(deviceAt(1, "2")), ErrNotStarted)
	assert.ErrorIs(t, o.OnDeviceRemoved("1:2"), ErrNotStarted)
	assert.ErrorIs(t, o.OnBusReset(1), ErrNotStarted)
}

func TestOrchestrator_ConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(_ *Config) {}, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"negative queue depth", func(c *Config) { c.QueueDepth = -4 }, true},
		{"negative probe timeout", func(c *Config) { c.ProbeTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(&config)
			_, err := New(registry.New(), config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// ===========================================================================
// Arrival
// ===========================================================================

func TestOrchestrator_ArrivalAttaches(t *testing.T) {
	o, reg, recorder := newTestOrchestrator(t, Config{})
	drv := &scriptDriver{name: "usb-storage"}
	require.NoError(t, reg.Register(drv))

	dev := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(dev))
	o.Drain()

	assert.Equal(t, usb.StateAttached, dev.State())
	assert.Equal(t, int32(1), drv.probes.Load())

	got, ok := o.Device("1:2")
	require.True(t, ok)
	assert.Same(t, dev, got)

	require.Equal(t, []log.Category{log.CategoryArrival, log.CategoryClaim}, recorder.categories())
	arrival, _ := recorder.find(log.CategoryArrival)
	require.NotNil(t, arrival.Device)
	assert.Equal(t, uint16(0x0781), arrival.Device.VendorID)
}

func TestOrchestrator_ArrivalWithoutDriverStaysVisible(t *testing.T) {
	o, _, recorder := newTestOrchestrator(t, Config{})

	dev := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(dev))
	o.Drain()

	// No driver is a parked state, not an eviction.
	assert.Equal(t, usb.StateNoDriver, dev.State())
	assert.Equal(t, 1, o.DeviceCount())
	require.Equal(t, []log.Category{log.CategoryArrival, log.CategoryNoDriver}, recorder.categories())
}

func TestOrchestrator_DuplicateArrivalDropped(t *testing.T) {
	o, reg, recorder := newTestOrchestrator(t, Config{})
	require.NoError(t, reg.Register(&scriptDriver{name: "usb-storage"}))

	first := deviceAt(1, "2")
	second := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(first))
	require.NoError(t, o.OnDeviceArrived(second))
	o.Drain()

	assert.Equal(t, 1, o.DeviceCount())
	got, _ := o.Device("1:2")
	assert.Same(t, first, got, "first arrival wins")
	assert.Equal(t, usb.StateUnclaimed, second.State(), "duplicate must not be probed")

	arrivals := 0
	for _, c := range recorder.categories() {
		if c == log.CategoryArrival {
			arrivals++
		}
	}
	assert.Equal(t, 1, arrivals)
}

// ===========================================================================
// Removal
// ===========================================================================

func TestOrchestrator_RemovalDetaches(t *testing.T) {
	released := make(chan *usb.Device, 1)
	o, reg, recorder := newTestOrchestrator(t, Config{
		OnRelease: func(dev *usb.Device) { released <- dev },
	})
	drv := &scriptDriver{name: "usb-storage"}
	require.NoError(t, reg.Register(drv))

	dev := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(dev))
	o.Drain()
	require.Equal(t, usb.StateAttached, dev.State())

	require.NoError(t, o.OnDeviceRemoved("1:2"))
	o.Drain()

	assert.Equal(t, usb.StateDeparted, dev.State())
	assert.Equal(t, int32(1), drv.detaches.Load())
	assert.Equal(t, 0, o.DeviceCount())
	assert.Equal(t, 0, reg.Attachments("usb-storage"))

	select {
	case got := <-released:
		assert.Same(t, dev, got)
		assert.Equal(t, usb.StateDeparted, got.State())
	case <-time.After(time.Second):
		t.Fatal("OnRelease not invoked")
	}

	require.Equal(t, []log.Category{
		log.CategoryArrival,
		log.CategoryClaim,
		log.CategoryRemoval,
		log.CategoryDetach,
	}, recorder.categories())
}

func TestOrchestrator_RemovalUnknownIsNoop(t *testing.T) {
	o, _, recorder := newTestOrchestrator(t, Config{})

	require.NoError(t, o.OnDeviceRemoved("9:9"))
	o.Drain()

	assert.Empty(t, recorder.categories())
}

func TestOrchestrator_RemovalOrderedAfterPendingArrival(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, Config{})
	drv := &scriptDriver{name: "usb-storage"}
	require.NoError(t, reg.Register(drv))

	// Enqueue arrival and removal back to back. The worker must run
	// the attach pass first and the detach second.
	dev := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(dev))
	require.NoError(t, o.OnDeviceRemoved("1:2"))
	o.Drain()

	assert.Equal(t, usb.StateDeparted, dev.State())
	assert.Equal(t, int32(1), drv.probes.Load())
	assert.Equal(t, int32(1), drv.detaches.Load())
	assert.Equal(t, 0, o.DeviceCount())
}

func TestOrchestrator_ReconnectIsFreshDevice(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, Config{})
	require.NoError(t, reg.Register(&scriptDriver{name: "usb-storage"}))

	first := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(first))
	require.NoError(t, o.OnDeviceRemoved("1:2"))

	// Same port, new record: the id is recycled, the identity is not.
	second := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(second))
	o.Drain()

	assert.Equal(t, usb.StateDeparted, first.State())
	assert.Equal(t, usb.StateAttached, second.State())

	got, ok := o.Device("1:2")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, o.DeviceCount())
}

// ===========================================================================
// Bus reset
// ===========================================================================

func TestOrchestrator_BusReset(t *testing.T) {
	o, reg, recorder := newTestOrchestrator(t, Config{})
	drv := &scriptDriver{name: "usb-storage"}
	require.NoError(t, reg.Register(drv))

	onBus := []*usb.Device{deviceAt(1, "1"), deviceAt(1, "2.1")}
	offBus := deviceAt(2, "1")
	for _, dev := range onBus {
		require.NoError(t, o.OnDeviceArrived(dev))
	}
	require.NoError(t, o.OnDeviceArrived(offBus))
	o.Drain()

	require.NoError(t, o.OnBusReset(1))
	o.Drain()

	for _, dev := range onBus {
		assert.Equal(t, usb.StateDeparted, dev.State())
	}
	assert.Equal(t, usb.StateAttached, offBus.State(), "other buses keep their devices")
	assert.Equal(t, 1, o.DeviceCount())

	reset, ok := recorder.find(log.CategoryReset)
	require.True(t, ok)
	require.NotNil(t, reset.Bus)
	assert.Equal(t, uint8(1), *reset.Bus)
}

// ===========================================================================
// Rescan and driver unload
// ===========================================================================

func TestOrchestrator_Rescan(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, Config{})

	dev := deviceAt(1, "2")
	require.NoError(t, o.OnDeviceArrived(dev))
	o.Drain()
	require.Equal(t, usb.StateNoDriver, dev.State())

	// Late registration does nothing on its own.
	require.NoError(t, reg.Register(&scriptDriver{name: "late"}))
	require.Equal(t, usb.StateNoDriver, dev.State())

	require.NoError(t, o.Rescan("1:2"))
	o.Drain()
	assert.Equal(t, usb.StateAttached, dev.State())
}

func TestOrchestrator_RescanUnknownDevice(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, Config{})
	assert.ErrorIs(t, o.Rescan("9:9"), ErrUnknownDevice)
}

func TestOrchestrator_DetachDriver(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, Config{})
	drv := &scriptDriver{name: "usb-storage"}
	require.NoError(t, reg.Register(drv))

	devs := []*usb.Device{deviceAt(1, "1"), deviceAt(1, "2")}
	for _, dev := range devs {
		require.NoError(t, o.OnDeviceArrived(dev))
	}
	o.Drain()
	require.Len(t, o.Attached(), 2)

	require.NoError(t, o.DetachDriver(context.Background(), "usb-storage"))

	assert.False(t, reg.Has("usb-storage"))
	assert.Equal(t, int32(2), drv.detaches.Load())
	for _, dev := range devs {
		assert.Equal(t, usb.StateUnclaimed, dev.State())
	}
	// Devices stay present, just unclaimed.
	assert.Equal(t, 2, o.DeviceCount())
	assert.Empty(t, o.Attached())

	assert.ErrorIs(t, o.DetachDriver(context.Background(), "usb-storage"), usb.ErrNotRegistered)
}

// ===========================================================================
// Backpressure and parallelism
// ===========================================================================

func TestOrchestrator_QueueFull(t *testing.T) {
	gate := make(chan struct{})
	o, reg, _ := newTestOrchestrator(t, Config{Workers: 1, QueueDepth: 1})

	blocking := &scriptDriver{name: "slow"}
	blocking.probeFn = func(ctx context.Context, dev *usb.Device) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	require.NoError(t, reg.Register(blocking))

	// First arrival occupies the worker, second fills the queue.
	first := deviceAt(1, "1")
	require.NoError(t, o.OnDeviceArrived(first))
	require.True(t, waitForState(first, usb.StateProbing, time.Second), "worker should be mid-probe")
	require.NoError(t, o.OnDeviceArrived(deviceAt(1, "2")))

	err := o.OnDeviceArrived(deviceAt(1, "3"))
	assert.ErrorIs(t, err, ErrQueueFull)

	close(gate)
	o.Drain()
	assert.Equal(t, 2, o.DeviceCount())
}

func TestOrchestrator_ParallelWorkersKeepPerDeviceOrder(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, Config{Workers: 4, QueueDepth: 128})
	drv := &scriptDriver{name: "usb-storage"}
	require.NoError(t, reg.Register(drv))

	const devices = 24
	for i := 0; i < devices; i++ {
		dev := deviceAt(uint8(1+i%3), fmt.Sprintf("%d", i))
		require.NoError(t, o.OnDeviceArrived(dev))
		require.NoError(t, o.OnDeviceRemoved(dev.ID()))
	}
	o.Drain()

	// Every device was attached exactly once and detached exactly once,
	// in that order, regardless of worker interleaving.
	assert.Equal(t, int32(devices), drv.probes.Load())
	assert.Equal(t, int32(devices), drv.detaches.Load())
	assert.Equal(t, 0, o.DeviceCount())
	assert.Equal(t, 0, reg.Attachments("usb-storage"))
}

func TestOrchestrator_DevicesSnapshotSorted(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, Config{})
	require.NoError(t, reg.Register(&scriptDriver{name: "usb-storage"}))

	for _, port := range []string{"3", "1", "2"} {
		require.NoError(t, o.OnDeviceArrived(deviceAt(1, port)))
	}
	o.Drain()

	devs := o.Devices()
	require.Len(t, devs, 3)
	assert.Equal(t, usb.DeviceID("1:1"), devs[0].ID())
	assert.Equal(t, usb.DeviceID("1:2"), devs[1].ID())
	assert.Equal(t, usb.DeviceID("1:3"), devs[2].ID())
}
