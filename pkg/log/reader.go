package log

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/usbcore-project/usbcore-go/pkg/usb"
)

// Filter specifies criteria for selecting journal events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// DeviceID filters by exact device ID match.
	DeviceID usb.DeviceID

	// Driver filters by driver name.
	Driver string

	// Category filters by event category.
	Category *Category

	// Bus filters by bus number (matched against the device ID prefix
	// for device-scoped events and the Bus field for resets).
	Bus *uint8

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time
}

// matches returns true if the event satisfies all filter criteria.
func (f *Filter) matches(event Event) bool {
	if f.DeviceID != "" && event.DeviceID != f.DeviceID {
		return false
	}
	if f.Driver != "" && event.Driver != f.Driver {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Bus != nil && !f.matchesBus(event) {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

func (f *Filter) matchesBus(event Event) bool {
	if event.Bus != nil {
		return *event.Bus == *f.Bus
	}
	if event.DeviceID == "" {
		return false
	}
	addr, err := usb.ParseDeviceID(event.DeviceID)
	if err != nil {
		return false
	}
	return addr.Bus == *f.Bus
}

// Reader reads journal events from a CBOR-encoded file.
// It provides an iterator interface for streaming large files.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader creates a Reader that reads all events from the specified
// journal file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that reads events matching the
// filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next event that matches the filter.
// Returns io.EOF when no more events are available.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
