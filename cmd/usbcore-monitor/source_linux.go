//go:build linux

package main

import (
	"log/slog"

	"github.com/usbcore-project/usbcore-go/pkg/bus"
	"github.com/usbcore-project/usbcore-go/pkg/bus/netlinkbus"
)

// newNetlinkSource opens the kernel uevent socket.
func newNetlinkSource(logger *slog.Logger) (bus.Source, error) {
	src, err := netlinkbus.New()
	if err != nil {
		return nil, err
	}
	src.SetLogger(logger)
	return src, nil
}
