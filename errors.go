package serial

import (
	"errors"
	"fmt"
	"strings"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrPortClosed       = errors.New("serial port is closed")

	// Line configuration causes, reported individually inside a ConfigError
	ErrGetAttributes   = errors.New("cannot read line attributes")
	ErrSetAttributes   = errors.New("cannot apply line attributes")
	ErrSetInputSpeed   = errors.New("cannot set input speed")
	ErrSetOutputSpeed  = errors.New("cannot set output speed")
	ErrInvalidDataBits = errors.New("invalid data bits")
	ErrInvalidParity   = errors.New("invalid parity")
	ErrInvalidStopBits = errors.New("invalid stop bits")
	ErrLowLatencyGet   = errors.New("cannot read low latency setting")
	ErrLowLatencySet   = errors.New("cannot set low latency")

	// Lock errors
	ErrLockFailed = errors.New("cannot create lock file")

	// USB-related errors
	ErrUSBInfoNotAvailable = errors.New("USB device information not available")
)

// ConfigError collects every cause that prevented a LineConfig from being
// applied. Each cause wraps one of the Err* sentinels above.
type ConfigError struct {
	Failures []error
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("line configuration failed: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the individual causes to errors.Is and errors.As.
func (e *ConfigError) Unwrap() []error {
	return e.Failures
}

// LockedError reports a lock file held by a live process.
type LockedError struct {
	Device string
	PID    int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s is locked by process %d", e.Device, e.PID)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrDeviceInUse
}
