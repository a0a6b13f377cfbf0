//go:build !linux

package main

import (
	"errors"
	"log/slog"

	"github.com/usbcore-project/usbcore-go/pkg/bus"
)

// newNetlinkSource reports that the kernel uevent socket is a linux
// facility. Other platforms use the sim source.
func newNetlinkSource(*slog.Logger) (bus.Source, error) {
	return nil, errors.New("netlink source requires linux")
}
