package hotplug

import (
	"context"
	"errors"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/bus"
)

// pumpRetryDelay is how long Pump backs off when the orchestrator's
// queues are full before offering the event again.
const pumpRetryDelay = time.Millisecond

// Pump forwards events from src into o until the source's channel
// closes or ctx is cancelled. A full queue is not fatal: Pump holds
// the event and retries, so a slow probe stalls the bus reader
// instead of dropping arrivals. Any other orchestrator error stops
// the pump.
//
// Pump does not call src.Run; callers run the source themselves,
// typically in a sibling goroutine.
func Pump(ctx context.Context, src bus.Source, o *Orchestrator) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := pumpOne(ctx, o, ev); err != nil {
				return err
			}
		}
	}
}

func pumpOne(ctx context.Context, o *Orchestrator, ev bus.Event) error {
	for {
		var err error
		switch ev := ev.(type) {
		case bus.Arrival:
			err = o.OnDeviceArrived(ev.Device)
		case bus.Removal:
			err = o.OnDeviceRemoved(ev.DeviceID)
		case bus.Reset:
			err = o.OnBusReset(ev.Bus)
		default:
			return nil
		}
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pumpRetryDelay):
		}
	}
}
