package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/usbcore-project/usbcore-go/pkg/log"
)

// RunExport exports the journal to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	// Write header
	header := []string{"timestamp", "event_id", "category", "device_id", "driver", "bus", "probes", "duration_ns", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		busStr := ""
		if event.Bus != nil {
			busStr = strconv.Itoa(int(*event.Bus))
		}

		probes := ""
		duration := ""
		detail := ""
		switch {
		case event.Device != nil:
			detail = fmt.Sprintf("%04x:%04x %s", event.Device.VendorID, event.Device.ProductID, event.Device.Class)
		case event.Probe != nil:
			duration = strconv.FormatInt(event.Probe.Duration.Nanoseconds(), 10)
			detail = event.Probe.Kind.String()
			if event.Probe.Error != "" {
				detail += ": " + event.Probe.Error
			}
		case event.Attach != nil:
			probes = strconv.Itoa(event.Attach.Probes)
			duration = strconv.FormatInt(event.Attach.Duration.Nanoseconds(), 10)
			if event.Attach.Specificity != nil {
				detail = event.Attach.Specificity.String()
			}
		case event.Registry != nil:
			detail = fmt.Sprintf("%s drivers=%d", event.Registry.Op, event.Registry.Drivers)
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.EventID,
			event.Category.String(),
			string(event.DeviceID),
			event.Driver,
			busStr,
			probes,
			duration,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
