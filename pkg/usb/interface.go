package usb

// Direction is the data flow direction of an endpoint, seen from the
// host.
type Direction uint8

// Endpoint directions.
const (
	DirectionOut Direction = 0
	DirectionIn  Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirectionIn {
		return "IN"
	}
	return "OUT"
}

// TransferType is an endpoint's transfer type.
type TransferType uint8

// Endpoint transfer types.
const (
	TransferControl     TransferType = 0
	TransferIsochronous TransferType = 1
	TransferBulk        TransferType = 2
	TransferInterrupt   TransferType = 3
)

// String returns the transfer type name.
func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "CONTROL"
	case TransferIsochronous:
		return "ISOCHRONOUS"
	case TransferBulk:
		return "BULK"
	case TransferInterrupt:
		return "INTERRUPT"
	default:
		return "UNKNOWN"
	}
}

// Endpoint describes one endpoint of an interface as decoded from the
// configuration descriptor.
type Endpoint struct {
	// Address packs the endpoint number (bits 0-3) and direction (bit 7).
	Address uint8

	// Attributes packs the transfer type (bits 0-1).
	Attributes uint8

	// MaxPacketSize is the maximum packet size in bytes.
	MaxPacketSize uint16

	// Interval is the polling interval for interrupt and isochronous
	// endpoints, in frames.
	Interval uint8
}

// Number returns the endpoint number without the direction bit.
func (e Endpoint) Number() uint8 {
	return e.Address & 0x0f
}

// Direction returns the endpoint's transfer direction.
func (e Endpoint) Direction() Direction {
	if e.Address&0x80 != 0 {
		return DirectionIn
	}
	return DirectionOut
}

// TransferType returns the endpoint's transfer type.
func (e Endpoint) TransferType() TransferType {
	return TransferType(e.Attributes & 0x03)
}

// Interface describes one interface of a device's active
// configuration. An interface belongs to exactly one device and shares
// its lifetime.
type Interface struct {
	// Number is the interface number within the configuration.
	Number uint8

	// Alternate is the alternate setting number.
	Alternate uint8

	// Class, SubClass and Protocol form the interface's class triple.
	Class    Class
	SubClass SubClass
	Protocol Protocol

	// Endpoints are the interface's endpoints, excluding endpoint 0.
	Endpoints []Endpoint
}

// HasEndpoint reports whether the interface has an endpoint with the
// given transfer type and direction.
func (i *Interface) HasEndpoint(t TransferType, dir Direction) bool {
	for _, ep := range i.Endpoints {
		if ep.TransferType() == t && ep.Direction() == dir {
			return true
		}
	}
	return false
}

// InterfaceInfo is a serializable summary of an interface for
// diagnostics.
type InterfaceInfo struct {
	Number    uint8    `cbor:"1,keyasint"`
	Class     Class    `cbor:"2,keyasint"`
	SubClass  SubClass `cbor:"3,keyasint"`
	Protocol  Protocol `cbor:"4,keyasint"`
	Endpoints uint8    `cbor:"5,keyasint"`
}

// Info returns a summary of the interface for diagnostics.
func (i *Interface) Info() *InterfaceInfo {
	return &InterfaceInfo{
		Number:    i.Number,
		Class:     i.Class,
		SubClass:  i.SubClass,
		Protocol:  i.Protocol,
		Endpoints: uint8(len(i.Endpoints)),
	}
}
