//go:build linux

package netlinkbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/usbcore-project/usbcore-go/pkg/bus"
	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

const (
	// ueventBufferSize fits any uevent datagram the kernel sends.
	ueventBufferSize = 4096

	// kernelGroup is the netlink multicast group kernel uevents are
	// broadcast on. udev rebroadcasts on group 2 in its own format.
	kernelGroup = 1

	// pollTimeoutMillis bounds how long a read waits before the run
	// loop rechecks its context.
	pollTimeoutMillis = 250
)

// Source watches the kernel's uevent stream and reports USB device
// arrivals and removals. Devices already present when Run starts are
// reported first, from a sysfs scan.
type Source struct {
	fd     int
	root   string
	events chan bus.Event
	logger *slog.Logger

	closeOnce sync.Once
	doneOnce  sync.Once
}

// New opens the kernel uevent socket.
func New() (*Source, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT,
	)
	if err != nil {
		return nil, fmt.Errorf("open uevent socket: %w", err)
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: kernelGroup,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind uevent socket: %w", err)
	}
	return &Source{
		fd:     fd,
		root:   DefaultSysfsRoot,
		events: make(chan bus.Event, 64),
	}, nil
}

// SetLogger sets an optional logger for debug output.
func (s *Source) SetLogger(logger *slog.Logger) { s.logger = logger }

// Events returns the delivery channel. It is closed when Run returns.
func (s *Source) Events() <-chan bus.Event { return s.events }

// Run scans sysfs for devices already on the bus, then follows the
// uevent stream until ctx is cancelled or the socket fails.
func (s *Source) Run(ctx context.Context) error {
	defer s.doneOnce.Do(func() { close(s.events) })

	if err := s.coldScan(ctx); err != nil {
		return err
	}

	buf := make([]byte, ueventBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Read(s.fd, buf)
		switch {
		case err == nil:
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			if err := s.waitReadable(ctx); err != nil {
				return err
			}
			continue
		case errors.Is(err, unix.EBADF):
			// Close raced the read loop.
			return nil
		default:
			return fmt.Errorf("read uevent socket: %w", err)
		}
		if n <= 0 {
			continue
		}
		if err := s.handleUEvent(ctx, parseUEvent(buf[:n])); err != nil {
			return err
		}
	}
}

// Close closes the uevent socket. Safe to call more than once.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() { err = unix.Close(s.fd) })
	return err
}

// coldScan reports devices that were on the bus before the stream
// opened. Hotplug events for these devices may still be in flight; the
// consumer's duplicate handling covers the overlap.
func (s *Source) coldScan(ctx context.Context) error {
	descs, err := Enumerate(s.root)
	if err != nil {
		return err
	}
	s.debugLog("cold scan complete", "devices", len(descs))
	for _, desc := range descs {
		if err := s.send(ctx, bus.Arrival{Device: usb.NewDevice(desc)}); err != nil {
			return err
		}
	}
	return nil
}

// waitReadable polls the socket so a cancelled context is noticed even
// while the bus is quiet.
func (s *Source) waitReadable(ctx context.Context) error {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, pollTimeoutMillis)
		if err != nil && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("poll uevent socket: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
}

func (s *Source) handleUEvent(ctx context.Context, ev uevent) error {
	if !ev.isDeviceEvent() {
		return nil
	}
	switch ev.action {
	case ueventAdd:
		desc, err := readDevice(s.root, ev.entryName())
		if err != nil {
			// The device can be gone again before sysfs is read.
			s.debugLog("skipping arrival", "entry", ev.entryName(), "error", err)
			return nil
		}
		return s.send(ctx, bus.Arrival{Device: usb.NewDevice(desc)})
	case ueventRemove:
		addr, err := parseEntryName(ev.entryName())
		if err != nil {
			return nil
		}
		return s.send(ctx, bus.Removal{DeviceID: addr.ID()})
	default:
		return nil
	}
}

func (s *Source) send(ctx context.Context, ev bus.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
