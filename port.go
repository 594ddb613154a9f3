package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Port is an open, locked and configured serial device. After Close every
// method returns ErrPortClosed or a Failure outcome.
type Port interface {
	Device() string
	LineConfig() LineConfig
	ParityEnabled() bool
	Configure(lc LineConfig) error
	Close() error

	// Byte transport
	WaitReadable(timeout time.Duration) (Readiness, error)
	WaitWritable(timeout time.Duration) (Readiness, error)
	ReceiveByte() TransferOutcome
	TransmitByte(b byte) TransferOutcome
	Flush() error
	Drain() error

	// Modem signal control and monitoring
	ModemSignals() (ModemSignals, error)
	SetDTR(state bool) error
	SetRTS(state bool) error
}

// port is the concrete implementation of the Port interface
type port struct {
	mu     sync.RWMutex
	fd     int
	device string
	config Config
	saved  *unix.Termios
	locker *Locker
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// ModemSignals represents modem control signal states
type ModemSignals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// Open locks device, opens it, saves its current attributes and applies the
// configured LineConfig. The saved attributes are restored by Close.
func Open(device string, opts ...Option) (Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	var locker *Locker
	if !config.NoLock {
		locker = NewLocker(config.LockDir)
		if err := locker.Lock(device); err != nil {
			return nil, err
		}
	}
	release := func() {
		if locker != nil {
			locker.Unlock(device)
		}
	}

	// O_NONBLOCK keeps open() from waiting on carrier detect
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_SYNC|unix.O_NONBLOCK, 0)
	if err != nil {
		release()
		return nil, openError(device, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		release()
		return nil, fmt.Errorf("failed to clear O_NONBLOCK on %s: %w", device, err)
	}

	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		release()
		return nil, &ConfigError{Failures: []error{fmt.Errorf("%w: %w", ErrGetAttributes, err)}}
	}

	p := &port{
		fd:     fd,
		device: device,
		config: config,
		saved:  saved,
		locker: locker,
	}

	if err := p.Configure(config.Line); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Flush(); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", device, err)
	}

	return p, nil
}

func openError(device string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		return fmt.Errorf("failed to open %s: %w: %w", device, ErrDeviceNotFound, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("failed to open %s: %w: %w", device, ErrPermissionDenied, err)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("failed to open %s: %w: %w", device, ErrDeviceInUse, err)
	default:
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
}

func (p *port) Device() string {
	return p.device
}

func (p *port) LineConfig() LineConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Line
}

// ParityEnabled reports whether the applied configuration checks parity
func (p *port) ParityEnabled() bool {
	return p.LineConfig().ParityEnabled()
}

// Configure applies lc. The stored configuration is updated only on success.
func (p *port) Configure(lc LineConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := Configure(p.fd, lc); err != nil {
		return err
	}
	p.config.Line = lc
	return nil
}

// Close restores the attributes saved by Open, closes the device and
// releases the lock
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true

	var restoreErr error
	if p.saved != nil {
		if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, p.saved); err != nil {
			restoreErr = fmt.Errorf("failed to restore attributes: %w", err)
		}
	}
	closeErr := unix.Close(p.fd)
	if p.locker != nil {
		p.locker.Unlock(p.device)
	}
	return errors.Join(restoreErr, closeErr)
}

// WaitReadable waits up to timeout for input
func (p *port) WaitReadable(timeout time.Duration) (Readiness, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return Failure, ErrPortClosed
	}
	return waitFD(p.fd, unix.POLLIN, timeout)
}

// WaitWritable waits up to timeout for room in the output queue
func (p *port) WaitWritable(timeout time.Duration) (Readiness, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return Failure, ErrPortClosed
	}
	return waitFD(p.fd, unix.POLLOUT, timeout)
}

// ReceiveByte reads one raw byte, escapes included
func (p *port) ReceiveByte() TransferOutcome {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return TransferOutcome{Status: StatusFailure, Err: ErrPortClosed}
	}
	return receiveByte(p.fd, p.config.Clock)
}

// TransmitByte writes one byte
func (p *port) TransmitByte(b byte) TransferOutcome {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return TransferOutcome{Status: StatusFailure, Byte: b, Err: ErrPortClosed}
	}
	return transmitByte(p.fd, b, p.config.Clock)
}

// Flush discards both unread input and unwritten output
func (p *port) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// Drain waits until all output written to the port has been transmitted
func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// ModemSignals returns current state of all modem control signals
func (p *port) ModemSignals() (ModemSignals, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ModemSignals{}, ErrPortClosed
	}

	status, err := unix.IoctlGetInt(p.fd, unix.TIOCMGET)
	if err != nil {
		return ModemSignals{}, err
	}

	return ModemSignals{
		CTS: status&unix.TIOCM_CTS != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DCD: status&unix.TIOCM_CAR != 0,
		RTS: status&unix.TIOCM_RTS != 0,
		DTR: status&unix.TIOCM_DTR != 0,
	}, nil
}

// SetDTR asserts or clears Data Terminal Ready
func (p *port) SetDTR(state bool) error {
	return p.setModemLine(unix.TIOCM_DTR, state)
}

// SetRTS asserts or clears Request To Send
func (p *port) SetRTS(state bool) error {
	return p.setModemLine(unix.TIOCM_RTS, state)
}

func (p *port) setModemLine(line int, state bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if state {
		return unix.IoctlSetPointerInt(p.fd, unix.TIOCMBIS, line)
	}
	return unix.IoctlSetPointerInt(p.fd, unix.TIOCMBIC, line)
}
