package simbus

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Action is the kind of bus operation a script step performs.
type Action uint8

// Script step actions.
const (
	ActionPlug Action = iota
	ActionUnplug
	ActionReset
)

// String returns the action name as it appears in script files.
func (a Action) String() string {
	switch a {
	case ActionPlug:
		return "plug"
	case ActionUnplug:
		return "unplug"
	case ActionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Step is one timed bus operation. Exactly one of Device, ID or Bus is
// meaningful, selected by Action.
type Step struct {
	// At is the step's offset from the start of playback.
	At time.Duration

	// Action selects what the step does.
	Action Action

	// Device describes the device a plug step connects.
	Device *usb.Desc

	// ID names the device an unplug step disconnects.
	ID usb.DeviceID

	// Bus is the controller bus a reset step clears.
	Bus uint8
}

// Script is a replayable sequence of bus operations, ordered by
// offset.
type Script struct {
	Name  string
	Steps []Step
}

// yamlScript is the YAML structure of a script file.
type yamlScript struct {
	Name  string     `yaml:"name"`
	Steps []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	At     string      `yaml:"at"`
	Action string      `yaml:"action"`
	Device *yamlDevice `yaml:"device"`
	ID     string      `yaml:"id"`
	Bus    *uint8      `yaml:"bus"`
}

type yamlDevice struct {
	Bus           uint8           `yaml:"bus"`
	Port          string          `yaml:"port"`
	VendorID      string          `yaml:"vendor_id"`
	ProductID     string          `yaml:"product_id"`
	DeviceRelease string          `yaml:"device_release"`
	USBRelease    string          `yaml:"usb_release"`
	Class         string          `yaml:"class"`
	SubClass      string          `yaml:"subclass"`
	Protocol      string          `yaml:"protocol"`
	Speed         string          `yaml:"speed"`
	Manufacturer  string          `yaml:"manufacturer"`
	Product       string          `yaml:"product"`
	Serial        string          `yaml:"serial"`
	Interfaces    []yamlInterface `yaml:"interfaces"`
}

type yamlInterface struct {
	Number    uint8          `yaml:"number"`
	Alternate uint8          `yaml:"alternate"`
	Class     string         `yaml:"class"`
	SubClass  string         `yaml:"subclass"`
	Protocol  string         `yaml:"protocol"`
	Endpoints []yamlEndpoint `yaml:"endpoints"`
}

type yamlEndpoint struct {
	Address       string `yaml:"address"`
	Transfer      string `yaml:"transfer"`
	MaxPacketSize uint16 `yaml:"max_packet_size"`
	Interval      uint8  `yaml:"interval"`
}

// LoadScript reads and parses a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return script, nil
}

// ParseScript parses YAML script data. Steps are returned sorted by
// offset; steps with equal offsets keep their file order.
func ParseScript(data []byte) (*Script, error) {
	var y yamlScript
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	script := &Script{Name: y.Name}
	for i, ys := range y.Steps {
		step, err := parseStep(ys)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		script.Steps = append(script.Steps, step)
	}

	sort.SliceStable(script.Steps, func(i, j int) bool {
		return script.Steps[i].At < script.Steps[j].At
	})
	return script, nil
}

func parseStep(ys yamlStep) (Step, error) {
	var step Step

	if ys.At != "" {
		at, err := time.ParseDuration(ys.At)
		if err != nil {
			return Step{}, fmt.Errorf("invalid offset %q", ys.At)
		}
		if at < 0 {
			return Step{}, fmt.Errorf("negative offset %q", ys.At)
		}
		step.At = at
	}

	switch ys.Action {
	case "plug":
		step.Action = ActionPlug
		if ys.Device == nil {
			return Step{}, fmt.Errorf("plug step has no device")
		}
		desc, err := parseDevice(ys.Device)
		if err != nil {
			return Step{}, err
		}
		step.Device = desc
	case "unplug":
		step.Action = ActionUnplug
		if ys.ID == "" {
			return Step{}, fmt.Errorf("unplug step has no id")
		}
		if _, err := usb.ParseDeviceID(usb.DeviceID(ys.ID)); err != nil {
			return Step{}, err
		}
		step.ID = usb.DeviceID(ys.ID)
	case "reset":
		step.Action = ActionReset
		if ys.Bus == nil {
			return Step{}, fmt.Errorf("reset step has no bus")
		}
		step.Bus = *ys.Bus
	case "":
		return Step{}, fmt.Errorf("step has no action")
	default:
		return Step{}, fmt.Errorf("unknown action %q", ys.Action)
	}

	return step, nil
}

func parseDevice(yd *yamlDevice) (*usb.Desc, error) {
	if yd.Port == "" {
		return nil, fmt.Errorf("device has no port")
	}
	vendor, err := parseHex16("vendor_id", yd.VendorID)
	if err != nil {
		return nil, err
	}
	product, err := parseHex16("product_id", yd.ProductID)
	if err != nil {
		return nil, err
	}
	class, subClass, protocol, err := parseClassTriple(yd.Class, yd.SubClass, yd.Protocol)
	if err != nil {
		return nil, err
	}
	speed, err := parseSpeed(yd.Speed)
	if err != nil {
		return nil, err
	}
	deviceRelease, err := parseBCD("device_release", yd.DeviceRelease)
	if err != nil {
		return nil, err
	}
	usbRelease, err := parseBCD("usb_release", yd.USBRelease)
	if err != nil {
		return nil, err
	}

	desc := &usb.Desc{
		Address:      usb.Address{Bus: yd.Bus, Port: yd.Port},
		VendorID:     vendor,
		ProductID:    product,
		Device:       deviceRelease,
		USBRelease:   usbRelease,
		Class:        class,
		SubClass:     usb.SubClass(subClass),
		Protocol:     usb.Protocol(protocol),
		Speed:        speed,
		Manufacturer: yd.Manufacturer,
		Product:      yd.Product,
		SerialNumber: yd.Serial,
	}

	for i, yi := range yd.Interfaces {
		iface, err := parseInterface(yi)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i+1, err)
		}
		desc.Interfaces = append(desc.Interfaces, iface)
	}
	return desc, nil
}

func parseInterface(yi yamlInterface) (*usb.Interface, error) {
	class, subClass, protocol, err := parseClassTriple(yi.Class, yi.SubClass, yi.Protocol)
	if err != nil {
		return nil, err
	}
	iface := &usb.Interface{
		Number:    yi.Number,
		Alternate: yi.Alternate,
		Class:     class,
		SubClass:  usb.SubClass(subClass),
		Protocol:  usb.Protocol(protocol),
	}
	for i, ye := range yi.Endpoints {
		ep, err := parseEndpoint(ye)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i+1, err)
		}
		iface.Endpoints = append(iface.Endpoints, ep)
	}
	return iface, nil
}

func parseEndpoint(ye yamlEndpoint) (usb.Endpoint, error) {
	addr, err := parseHex8("address", ye.Address)
	if err != nil {
		return usb.Endpoint{}, err
	}
	var attrs uint8
	switch ye.Transfer {
	case "control":
		attrs = uint8(usb.TransferControl)
	case "isochronous":
		attrs = uint8(usb.TransferIsochronous)
	case "bulk":
		attrs = uint8(usb.TransferBulk)
	case "interrupt":
		attrs = uint8(usb.TransferInterrupt)
	case "":
		return usb.Endpoint{}, fmt.Errorf("endpoint has no transfer type")
	default:
		return usb.Endpoint{}, fmt.Errorf("unknown transfer type %q", ye.Transfer)
	}
	return usb.Endpoint{
		Address:       addr,
		Attributes:    attrs,
		MaxPacketSize: ye.MaxPacketSize,
		Interval:      ye.Interval,
	}, nil
}

// parseClassTriple resolves a class given by name or hex code plus its
// optional subclass and protocol codes.
func parseClassTriple(class, subClass, protocol string) (usb.Class, uint8, uint8, error) {
	var c usb.Class
	if class != "" {
		if named, ok := usb.ParseClass(class); ok {
			c = named
		} else {
			code, err := parseHex8("class", class)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("unknown class %q", class)
			}
			c = usb.Class(code)
		}
	}
	var sc, proto uint8
	var err error
	if subClass != "" {
		if sc, err = parseHex8("subclass", subClass); err != nil {
			return 0, 0, 0, err
		}
	}
	if protocol != "" {
		if proto, err = parseHex8("protocol", protocol); err != nil {
			return 0, 0, 0, err
		}
	}
	return c, sc, proto, nil
}

func parseSpeed(s string) (usb.Speed, error) {
	if s == "" {
		return usb.SpeedUnknown, nil
	}
	speed, ok := usb.ParseSpeed(s)
	if !ok {
		return usb.SpeedUnknown, fmt.Errorf("unknown speed %q", s)
	}
	return speed, nil
}

// parseBCD parses a dotted hex version like "2.10" into 0x0210.
func parseBCD(field, s string) (usb.BCD, error) {
	if s == "" {
		return 0, nil
	}
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	hi, err := strconv.ParseUint(major, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	lo, err := strconv.ParseUint(minor, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return usb.BCD(hi<<8 | lo), nil
}

func parseHex16(field, s string) (uint16, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	n, err := strconv.ParseUint(trimHexPrefix(s), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return uint16(n), nil
}

func parseHex8(field, s string) (uint8, error) {
	if s == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	n, err := strconv.ParseUint(trimHexPrefix(s), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return uint8(n), nil
}

func trimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
