// Command usbcore-log is a tool for viewing and analyzing attachment
// journal files.
//
// Journal files are created by running usbcore-monitor with the
// -journal flag.
//
// Usage:
//
//	usbcore-log <command> [flags] <file.ulog>
//
// Commands:
//
//	view     View journal in human-readable format
//	export   Export journal to JSON or CSV format
//	filter   Filter journal and write to new file
//	stats    Show statistics about the journal
//
// Examples:
//
//	# View all events
//	usbcore-log view monitor.ulog
//
//	# View only claim decisions
//	usbcore-log view --category claim monitor.ulog
//
//	# View one device's history
//	usbcore-log view --device-id 1:4.2 monitor.ulog
//
//	# Export to JSONL
//	usbcore-log export --format jsonl monitor.ulog
//
//	# Filter by driver and save to new file
//	usbcore-log filter --driver usb-storage -o storage.ulog monitor.ulog
//
//	# Show statistics
//	usbcore-log stats monitor.ulog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/usbcore-project/usbcore-go/cmd/usbcore-log/commands"
)

const usage = `usbcore-log - USB Attachment Journal Analyzer

Usage:
  usbcore-log <command> [flags] <file.ulog>

Commands:
  view     View journal in human-readable format
  export   Export journal to JSON or CSV format
  filter   Filter journal and write to new file
  stats    Show statistics about the journal

Use "usbcore-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `usbcore-log view - View journal in human-readable format

Usage:
  usbcore-log view [flags] <file.ulog>

Flags:
`)
		fs.PrintDefaults()
	}

	category := fs.String("category", "", "Filter by category (arrival, removal, claim, no_driver, probe_failure, detach, registry, reset)")
	deviceID := fs.String("device-id", "", "Filter by device ID")
	driver := fs.String("driver", "", "Filter by driver name")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal file path required")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)

	// Build filter
	var filter commands.ViewFilter

	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Category = &c
	}

	filter.DeviceID = *deviceID
	filter.Driver = *driver

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `usbcore-log export - Export journal to JSON or CSV format

Usage:
  usbcore-log export [flags] <file.ulog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal file path required")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `usbcore-log filter - Filter journal and write to new file

Usage:
  usbcore-log filter [flags] <file.ulog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	deviceID := fs.String("device-id", "", "Filter by device ID")
	driver := fs.String("driver", "", "Filter by driver name")
	category := fs.String("category", "", "Filter by category")
	busFlag := fs.String("bus", "", "Filter by bus number")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal file path required")
		fs.Usage()
		os.Exit(1)
	}

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)

	opts := commands.FilterOptions{
		Output:    *output,
		DeviceID:  *deviceID,
		Driver:    *driver,
		Category:  *category,
		Bus:       *busFlag,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
	}

	if err := commands.RunFilter(path, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `usbcore-log stats - Show statistics about the journal

Usage:
  usbcore-log stats <file.ulog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal file path required")
		fs.Usage()
		os.Exit(1)
	}

	path := fs.Arg(0)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
