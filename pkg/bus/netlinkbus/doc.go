// Package netlinkbus implements the Linux bus source.
//
// Arrivals and removals come from the kernel's NETLINK_KOBJECT_UEVENT
// broadcast, filtered to whole-device events on the usb subsystem. A
// uevent carries addressing but no descriptors, so arrivals are
// completed by reading the device's sysfs entry. Devices already on
// the bus at startup are reported through an initial sysfs scan.
//
// The uevent parser and the sysfs reader are portable; only the
// socket code is Linux-specific.
package netlinkbus
