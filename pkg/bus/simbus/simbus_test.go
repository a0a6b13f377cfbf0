package simbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbcore-project/usbcore-go/pkg/bus"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// flashDesc builds a mass storage descriptor at the given address.
func flashDesc(busNumber uint8, port string) usb.Desc {
	return usb.Desc{
		Address:   usb.Address{Bus: busNumber, Port: port},
		VendorID:  0x0781,
		ProductID: 0x5583,
		Class:     usb.ClassMassStorage,
		Speed:     usb.SpeedHigh,
		Product:   "Extreme SSD",
	}
}

// nextEvent receives one event or fails the test.
func nextEvent(t *testing.T, events <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived")
		return nil
	}
}

// ===========================================================================
// Programmatic injection
// ===========================================================================

func TestBus_PlugDevice_EmitsArrival(t *testing.T) {
	b := New()
	defer b.Close()

	dev, err := b.PlugDevice(flashDesc(1, "4.2"))
	require.NoError(t, err)
	require.NotNil(t, dev)
	assert.Equal(t, usb.DeviceID("1:4.2"), dev.ID())

	arrival, ok := nextEvent(t, b.Events()).(bus.Arrival)
	require.True(t, ok, "expected an arrival event")
	assert.Same(t, dev, arrival.Device, "event should carry the returned record")
}

func TestBus_PlugDevice_RequiresPort(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.PlugDevice(usb.Desc{VendorID: 0x0781, ProductID: 0x5583})
	assert.ErrorIs(t, err, ErrNoPort)
}

func TestBus_UnplugDevice_EmitsRemoval(t *testing.T) {
	b := New()
	defer b.Close()

	require.NoError(t, b.UnplugDevice("1:4.2"))

	removal, ok := nextEvent(t, b.Events()).(bus.Removal)
	require.True(t, ok, "expected a removal event")
	assert.Equal(t, usb.DeviceID("1:4.2"), removal.DeviceID)
}

func TestBus_ResetBus_EmitsReset(t *testing.T) {
	b := New()
	defer b.Close()

	require.NoError(t, b.ResetBus(2))

	reset, ok := nextEvent(t, b.Events()).(bus.Reset)
	require.True(t, ok, "expected a reset event")
	assert.Equal(t, uint8(2), reset.Bus)
}

// ===========================================================================
// Lifecycle
// ===========================================================================

func TestBus_Close_RejectsLateProducers(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close should be idempotent")

	_, err := b.PlugDevice(flashDesc(1, "1"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.UnplugDevice("1:1"), ErrClosed)
	assert.ErrorIs(t, b.ResetBus(1), ErrClosed)

	_, open := <-b.Events()
	assert.False(t, open, "event channel should be closed")
}

func TestBus_Backlog_Overflows(t *testing.T) {
	b := New()
	defer b.Close()

	for i := 0; i < eventBacklog; i++ {
		require.NoError(t, b.UnplugDevice(usb.DeviceID(fmt.Sprintf("1:%d", i))))
	}
	assert.ErrorIs(t, b.UnplugDevice("1:999"), ErrBacklog)
}

// ===========================================================================
// Script playback
// ===========================================================================

func TestBus_Run_ReplaysScript(t *testing.T) {
	desc := flashDesc(1, "4.2")
	b := New()
	b.SetScript(&Script{
		Name: "replay",
		Steps: []Step{
			{At: 0, Action: ActionPlug, Device: &desc},
			{At: 5 * time.Millisecond, Action: ActionUnplug, ID: "1:4.2"},
			{At: 10 * time.Millisecond, Action: ActionReset, Bus: 1},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	arrival, ok := nextEvent(t, b.Events()).(bus.Arrival)
	require.True(t, ok)
	assert.Equal(t, usb.DeviceID("1:4.2"), arrival.Device.ID())

	removal, ok := nextEvent(t, b.Events()).(bus.Removal)
	require.True(t, ok)
	assert.Equal(t, usb.DeviceID("1:4.2"), removal.DeviceID)

	reset, ok := nextEvent(t, b.Events()).(bus.Reset)
	require.True(t, ok)
	assert.Equal(t, uint8(1), reset.Bus)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}

	_, open := <-b.Events()
	assert.False(t, open, "run should close the event channel")
}

func TestBus_Run_AcceptsInjectionWhileIdle(t *testing.T) {
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	dev, err := b.PlugDevice(flashDesc(2, "1"))
	require.NoError(t, err)

	arrival, ok := nextEvent(t, b.Events()).(bus.Arrival)
	require.True(t, ok)
	assert.Same(t, dev, arrival.Device)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestBus_Run_ScriptAgainstClosedBus(t *testing.T) {
	desc := flashDesc(1, "1")
	b := New()
	b.SetScript(&Script{Steps: []Step{{Action: ActionPlug, Device: &desc}}})
	require.NoError(t, b.Close())

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorContains(t, err, "step 1")
}
