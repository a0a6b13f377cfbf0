package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/usbcore-project/usbcore-go/pkg/log"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	DeviceID  string
	Driver    string
	Category  string
	Bus       string
	TimeStart string
	TimeEnd   string
}

// RunFilter filters the journal and writes matching events to a new file.
func RunFilter(path string, opts FilterOptions) error {
	// Build filter
	filter := log.Filter{
		DeviceID: usb.DeviceID(opts.DeviceID),
		Driver:   opts.Driver,
	}

	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}

	if opts.Bus != "" {
		b, err := strconv.ParseUint(opts.Bus, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid bus number: %w", err)
		}
		busNumber := uint8(b)
		filter.Bus = &busNumber
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	// Open input
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	// Create file logger to write filtered events
	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		logger.Log(event)
		count++
	}

	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
	return nil
}
