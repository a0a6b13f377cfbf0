package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// journalEncMode is the CBOR encoder mode for journal events.
// Configured for nanosecond-precision timestamps and deterministic
// encoding, so identical events always produce identical bytes.
var journalEncMode cbor.EncMode

// journalDecMode is the CBOR decoder mode for journal events.
var journalDecMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	journalEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR encoder mode: %v", err))
	}

	// Tolerant decoding: journals written by older builds must stay
	// readable.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	journalDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR bytes using integer keys.
func EncodeEvent(event Event) ([]byte, error) {
	return journalEncMode.Marshal(event)
}

// DecodeEvent decodes CBOR bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := journalDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewEncoder creates a CBOR encoder for journal events that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return journalEncMode.NewEncoder(w)
}

// NewDecoder creates a CBOR decoder for journal events that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return journalDecMode.NewDecoder(r)
}
