package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Stats holds aggregate statistics about a journal.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Devices          map[usb.DeviceID]*DeviceStats
	Drivers          map[string]*DriverStats
	ProbeFailures    int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device.
type DeviceStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Claims     int
	LastDriver string
}

// DriverStats holds statistics for a single driver.
type DriverStats struct {
	Claims        int
	Detaches      int
	ProbeFailures int
}

// RunStats analyzes the journal and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Devices:          make(map[usb.DeviceID]*DeviceStats),
		Drivers:          make(map[string]*DriverStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		// Track device stats
		if event.DeviceID != "" {
			dev, ok := stats.Devices[event.DeviceID]
			if !ok {
				dev = &DeviceStats{
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				}
				stats.Devices[event.DeviceID] = dev
			}
			dev.Events++
			if event.Timestamp.After(dev.LastSeen) {
				dev.LastSeen = event.Timestamp
			}
			if event.Category == log.CategoryClaim {
				dev.Claims++
				dev.LastDriver = event.Driver
			}
		}

		// Track driver stats
		if event.Driver != "" {
			drv, ok := stats.Drivers[event.Driver]
			if !ok {
				drv = &DriverStats{}
				stats.Drivers[event.Driver] = drv
			}
			switch event.Category {
			case log.CategoryClaim:
				drv.Claims++
			case log.CategoryDetach:
				drv.Detaches++
			case log.CategoryProbeFailure:
				drv.ProbeFailures++
			}
		}

		// Count probe failures
		if event.Category == log.CategoryProbeFailure {
			stats.ProbeFailures++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== USB Attachment Journal Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for cat := log.CategoryArrival; cat <= log.CategoryReset; cat++ {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Drivers
	fmt.Fprintf(w, "Drivers: %d\n", len(stats.Drivers))
	if len(stats.Drivers) > 0 {
		names := make([]string, 0, len(stats.Drivers))
		for name := range stats.Drivers {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ds := stats.Drivers[name]
			fmt.Fprintf(w, "  %-16s %d claim(s), %d detach(es), %d probe failure(s)\n",
				name, ds.Claims, ds.Detaches, ds.ProbeFailures)
		}
	}
	fmt.Fprintln(w)

	// Devices
	fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
	if len(stats.Devices) > 0 {
		ids := make([]usb.DeviceID, 0, len(stats.Devices))
		for id := range stats.Devices {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		fmt.Fprintln(w, "")
		for _, id := range ids {
			ds := stats.Devices[id]
			duration := ds.LastSeen.Sub(ds.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", id, ds.Events, duration)
			if ds.LastDriver != "" {
				fmt.Fprintf(w, "          Driver: %s (%d claim(s))\n", ds.LastDriver, ds.Claims)
			}
		}
	}

	// Probe failures
	if stats.ProbeFailures > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Probe Failures: %d\n", stats.ProbeFailures)
	}
}
