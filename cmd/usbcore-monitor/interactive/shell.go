// Package interactive provides the interactive command-line interface
// for the usbcore monitor.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/usbcore-project/usbcore-go/pkg/bus/simbus"
	"github.com/usbcore-project/usbcore-go/pkg/hotplug"
	"github.com/usbcore-project/usbcore-go/pkg/inspect"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// MonitorConfig provides configuration information to the interactive
// shell. This interface allows the interactive layer to access monitor
// settings without depending on the main package's config structure.
type MonitorConfig interface {
	// SourceName returns the name of the active event source.
	SourceName() string

	// JournalPath returns the journal file path, or "" when the
	// journal is not written to a file.
	JournalPath() string
}

// Shell handles interactive mode for usbcore-monitor.
type Shell struct {
	orch   *hotplug.Orchestrator
	sim    *simbus.Bus
	config MonitorConfig
	rl     *readline.Instance
}

// New creates a new interactive shell. sim may be nil when the monitor
// runs against a source that does not accept injected devices; the
// plug/unplug/reset commands then report that they need the sim source.
func New(orch *hotplug.Orchestrator, sim *simbus.Bus, cfg MonitorConfig) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "usbcore> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		orch:   orch,
		sim:    sim,
		config: cfg,
		rl:     rl,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline
// input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "plug":
			s.cmdPlug(args)

		case "unplug":
			s.cmdUnplug(args)

		case "reset":
			s.cmdReset(args)

		case "lsdev", "devices", "ls":
			s.cmdDevices()

		case "info", "inspect":
			s.cmdInfo(args)

		case "lsdrv", "drivers":
			s.cmdDrivers()

		case "rescan":
			s.cmdRescan(args)

		case "detach-driver", "detach":
			s.cmdDetachDriver(ctx, args)

		case "stats", "status":
			s.cmdStats()

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
USB Core Monitor Commands:
  Simulated Bus:
    plug <preset|vid:pid> <bus>:<port> - Plug a device (presets: flash, keyboard, mouse)
    unplug <device-id>                 - Unplug a device
    reset <bus>                        - Reset a bus (all devices depart)

  Inspection:
    lsdev                              - List known devices
    info <device-id>                   - Show full detail for one device
    lsdrv                              - List registered drivers
    stats                              - Show monitor status

  Control:
    rescan <device-id>                 - Re-run matching for an unclaimed device
    detach-driver <name>               - Detach a driver from all devices and unregister it

  General:
    help                               - Show this help
    quit                               - Exit monitor

  Device ID Format:
    <bus>:<port> - e.g., 1:4.2 for port 4.2 on bus 1`)
}

// cmdPlug handles the plug command.
func (s *Shell) cmdPlug(args []string) {
	if s.sim == nil {
		fmt.Fprintln(s.rl.Stdout(), "plug requires the sim source")
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: plug <preset|vid:pid> <bus>:<port>")
		fmt.Fprintln(s.rl.Stdout(), "  Examples:")
		fmt.Fprintln(s.rl.Stdout(), "    plug flash 1:4.2       - SanDisk mass storage device")
		fmt.Fprintln(s.rl.Stdout(), "    plug keyboard 1:2      - Boot-protocol HID keyboard")
		fmt.Fprintln(s.rl.Stdout(), "    plug 0bda:8153 2:1     - Vendor-specific device")
		return
	}

	addr, err := usb.ParseDeviceID(usb.DeviceID(args[1]))
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid address: %v\n", err)
		return
	}

	desc, err := descFor(args[0], addr)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	dev, err := s.sim.PlugDevice(desc)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Plug failed: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Plugged %04x:%04x at %s\n", dev.VendorID(), dev.ProductID(), dev.ID())
}

// cmdUnplug handles the unplug command.
func (s *Shell) cmdUnplug(args []string) {
	if s.sim == nil {
		fmt.Fprintln(s.rl.Stdout(), "unplug requires the sim source")
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: unplug <device-id>")
		fmt.Fprintln(s.rl.Stdout(), "  Use 'lsdev' to list device IDs")
		return
	}

	id := s.resolveDeviceID(args[0])
	if id == "" {
		fmt.Fprintf(s.rl.Stdout(), "Device not found: %s\n", args[0])
		return
	}

	if err := s.sim.UnplugDevice(id); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Unplug failed: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Unplugged %s\n", id)
}

// cmdReset handles the reset command.
func (s *Shell) cmdReset(args []string) {
	if s.sim == nil {
		fmt.Fprintln(s.rl.Stdout(), "reset requires the sim source")
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: reset <bus>")
		return
	}

	busNumber, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid bus number: %v\n", err)
		return
	}

	if err := s.sim.ResetBus(uint8(busNumber)); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Reset failed: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Reset bus %d\n", busNumber)
}

// cmdDevices handles the lsdev command.
func (s *Shell) cmdDevices() {
	devices := s.orch.Devices()

	fmt.Fprintf(s.rl.Stdout(), "\nDevices (%d):\n", len(devices))
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	fmt.Fprint(s.rl.Stdout(), inspect.NewFormatter().FormatDeviceList(devices))
	fmt.Fprintln(s.rl.Stdout())
}

// cmdInfo handles the info command.
func (s *Shell) cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: info <device-id>")
		fmt.Fprintln(s.rl.Stdout(), "  Use 'lsdev' to list device IDs")
		return
	}

	id := s.resolveDeviceID(args[0])
	if id == "" {
		fmt.Fprintf(s.rl.Stdout(), "Device not found: %s\n", args[0])
		return
	}

	dev, ok := s.orch.Device(id)
	if !ok {
		fmt.Fprintf(s.rl.Stdout(), "Device not found: %s\n", args[0])
		return
	}

	f := inspect.NewFormatter()
	f.ShowCodes = true
	fmt.Fprintln(s.rl.Stdout())
	fmt.Fprint(s.rl.Stdout(), f.FormatDevice(dev))
	fmt.Fprintln(s.rl.Stdout())
}

// cmdDrivers handles the lsdrv command.
func (s *Shell) cmdDrivers() {
	reg := s.orch.Registry()
	names := reg.Names()
	if len(names) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No drivers registered")
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "\nDrivers (%d):\n", len(names))
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	for _, name := range names {
		drv, ok := reg.Get(name)
		if !ok {
			continue
		}
		fmt.Fprintf(s.rl.Stdout(), "  %-16s %-10s %d attachment(s)\n",
			name, usb.DriverSpecificity(drv).String(), reg.Attachments(name))
	}
	fmt.Fprintln(s.rl.Stdout())
}

// cmdRescan handles the rescan command.
func (s *Shell) cmdRescan(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: rescan <device-id>")
		return
	}

	id := s.resolveDeviceID(args[0])
	if id == "" {
		fmt.Fprintf(s.rl.Stdout(), "Device not found: %s\n", args[0])
		return
	}

	if err := s.orch.Rescan(id); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Rescan failed: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Rescan queued for %s\n", id)
}

// cmdDetachDriver handles the detach-driver command.
func (s *Shell) cmdDetachDriver(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: detach-driver <name>")
		fmt.Fprintln(s.rl.Stdout(), "  Use 'lsdrv' to list driver names")
		return
	}

	name := args[0]
	fmt.Fprintf(s.rl.Stdout(), "Detaching driver %s...\n", name)

	if err := s.orch.DetachDriver(ctx, name); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Detach failed: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Driver %s detached and unregistered\n", name)
}

// cmdStats handles the stats command.
func (s *Shell) cmdStats() {
	reg := s.orch.Registry()

	fmt.Fprintln(s.rl.Stdout(), "\nMonitor Status")
	fmt.Fprintln(s.rl.Stdout(), "-------------------------------------------")
	fmt.Fprintf(s.rl.Stdout(), "  Source:   %s\n", s.config.SourceName())
	journal := s.config.JournalPath()
	if journal == "" {
		journal = "(not written to a file)"
	}
	fmt.Fprintf(s.rl.Stdout(), "  Journal:  %s\n", journal)
	fmt.Fprintf(s.rl.Stdout(), "  Devices:  %d present, %d attached\n",
		s.orch.DeviceCount(), len(s.orch.Attached()))
	fmt.Fprintf(s.rl.Stdout(), "  Drivers:  %d registered\n", reg.Len())
	for _, name := range reg.Names() {
		fmt.Fprintf(s.rl.Stdout(), "    %-16s %d attachment(s)\n", name, reg.Attachments(name))
	}
	fmt.Fprintln(s.rl.Stdout())
}

// resolveDeviceID resolves a full or partial device ID to a known
// device. Exact matches win; otherwise the first device whose ID
// contains the fragment is returned.
func (s *Shell) resolveDeviceID(partial string) usb.DeviceID {
	id := usb.DeviceID(partial)
	if _, ok := s.orch.Device(id); ok {
		return id
	}

	for _, dev := range s.orch.Devices() {
		if strings.Contains(string(dev.ID()), partial) {
			return dev.ID()
		}
	}

	return ""
}
