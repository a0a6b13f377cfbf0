package log

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter mirrors journal events to an slog.Logger. Useful for
// development when you want attachment activity in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter that writes to the given
// slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Claims, no-driver outcomes
// and registry mutations log at Info, probe failures at Warn, the
// rest at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("event_id", event.EventID),
		slog.String("category", event.Category.String()),
	}

	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", string(event.DeviceID)))
	}
	if event.Driver != "" {
		attrs = append(attrs, slog.String("driver", event.Driver))
	}
	if event.Bus != nil {
		attrs = append(attrs, slog.Uint64("bus", uint64(*event.Bus)))
	}

	switch {
	case event.Device != nil:
		attrs = append(attrs,
			slog.String("vendor_id", hex16(event.Device.VendorID)),
			slog.String("product_id", hex16(event.Device.ProductID)),
			slog.String("class", event.Device.Class.String()),
			slog.Int("interfaces", len(event.Device.Interfaces)),
		)
	case event.Probe != nil:
		attrs = append(attrs,
			slog.String("kind", event.Probe.Kind.String()),
			slog.Int("attempt", event.Probe.Attempt),
			slog.Duration("duration", event.Probe.Duration),
		)
		if event.Probe.Error != "" {
			attrs = append(attrs, slog.String("error", event.Probe.Error))
		}
	case event.Attach != nil:
		attrs = append(attrs,
			slog.Int("probes", event.Attach.Probes),
			slog.Duration("duration", event.Attach.Duration),
		)
		if event.Attach.Specificity != nil {
			attrs = append(attrs, slog.String("specificity", event.Attach.Specificity.String()))
		}
	case event.Registry != nil:
		attrs = append(attrs,
			slog.String("op", event.Registry.Op.String()),
			slog.Int("drivers", event.Registry.Drivers),
		)
	}

	level := slog.LevelDebug
	switch event.Category {
	case CategoryClaim, CategoryNoDriver, CategoryRegistry, CategoryReset:
		level = slog.LevelInfo
	case CategoryProbeFailure:
		level = slog.LevelWarn
	}

	a.logger.LogAttrs(context.Background(), level, "journal", attrs...)
}

// hex16 formats a 16-bit identifier the way lsusb prints it.
func hex16(v uint16) string {
	return fmt.Sprintf("%04x", v)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
