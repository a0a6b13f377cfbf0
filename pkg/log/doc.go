// Package log provides the structured attachment journal.
//
// This package defines the Logger interface and Event types for
// capturing hotplug activity: arrivals, removals, probes, claims,
// detaches and registry mutations. It is separate from operational
// logging (slog) - the journal is a complete machine-readable record
// of every attachment decision, suitable for replay and analysis.
//
// # Basic Usage
//
// The orchestrator and registry emit events to any Logger:
//
//	// For development: mirror the journal to the console
//	cfg.Journal = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a binary journal file
//	cfg.Journal, _ = log.NewFileLogger("/var/log/usbcore/attach.ulog")
//
//	// Both: use MultiLogger
//	cfg.Journal = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Categories
//
// Every event carries a timestamp, a UUID, a category and, where
// applicable, the device ID and driver name involved. Categories with
// structure carry a payload:
//
//   - Arrival: full device summary (DeviceInfo)
//   - ProbeFailure: failure kind, attempt number, error, duration
//   - Claim / NoDriver: probe count, matching duration, winning tier
//   - Registry: operation and resulting registry size
//
// Probe declines are not journaled. A driver saying "not mine" is the
// normal path for every non-matching candidate and would drown the
// journal in noise.
//
// # File Format
//
// Journal files use CBOR encoding with the .ulog extension. The
// usbcore-log CLI tool provides viewing, filtering, stats and export.
package log
