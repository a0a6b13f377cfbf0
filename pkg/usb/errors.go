package usb

import (
	"context"
	"errors"
)

// Probe errors. Drivers return ErrUnsupported (usually wrapped) to
// decline a device; the rest classify genuine probe failures.
var (
	// ErrUnsupported declines an offered device. Flow control, not a
	// failure.
	ErrUnsupported = errors.New("device not supported")

	// ErrTimeout reports a probe that ran out of time.
	ErrTimeout = errors.New("probe timed out")

	// ErrTransferFailed reports a failed or stalled probe transfer.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrResourceExhausted reports an allocation failure during probe.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Registry errors.
var (
	// ErrDuplicateName rejects registering a name already in use.
	ErrDuplicateName = errors.New("driver name already registered")

	// ErrStillAttached rejects unregistering a driver with live claims.
	ErrStillAttached = errors.New("driver still attached to devices")

	// ErrNotRegistered reports an operation on an unknown driver.
	ErrNotRegistered = errors.New("driver not registered")
)

// ProbeErrorKind classifies a probe outcome for logging and the
// journal.
type ProbeErrorKind uint8

// Probe outcome kinds.
const (
	// ProbeOK means the probe accepted the device.
	ProbeOK ProbeErrorKind = iota

	// ProbeUnsupported means the driver declined the device.
	ProbeUnsupported

	// ProbeTimeout means the probe ran out of time.
	ProbeTimeout

	// ProbeTransferFailed means a probe transfer failed.
	ProbeTransferFailed

	// ProbeResourceExhausted means the probe could not allocate
	// resources.
	ProbeResourceExhausted

	// ProbeFailed covers any other probe failure.
	ProbeFailed
)

// String returns the kind name.
func (k ProbeErrorKind) String() string {
	switch k {
	case ProbeOK:
		return "OK"
	case ProbeUnsupported:
		return "UNSUPPORTED"
	case ProbeTimeout:
		return "TIMEOUT"
	case ProbeTransferFailed:
		return "TRANSFER_FAILED"
	case ProbeResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case ProbeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ClassifyProbeError maps a probe error to its kind. Context deadline
// expiry counts as a timeout; unrecognized errors count as FAILED.
func ClassifyProbeError(err error) ProbeErrorKind {
	switch {
	case err == nil:
		return ProbeOK
	case errors.Is(err, ErrUnsupported):
		return ProbeUnsupported
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ProbeTimeout
	case errors.Is(err, ErrTransferFailed):
		return ProbeTransferFailed
	case errors.Is(err, ErrResourceExhausted):
		return ProbeResourceExhausted
	default:
		return ProbeFailed
	}
}
