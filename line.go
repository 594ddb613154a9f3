package serial

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// asyncLowLatency is ASYNC_LOW_LATENCY from <linux/tty_flags.h>
const asyncLowLatency = 1 << 13

// serialStruct mirrors struct serial_struct from <linux/serial.h>
type serialStruct struct {
	Type          int32
	Line          int32
	Port          uint32
	IRQ           int32
	Flags         int32
	XmitFIFOSize  int32
	CustomDivisor int32
	BaudBase      int32
	CloseDelay    uint16
	IOType        int8
	ReservedChar  [1]int8
	Hub6          int32
	ClosingWait   uint16
	ClosingWait2  uint16
	IOMemBase     uintptr
	IOMemRegShift uint16
	PortHigh      uint32
	IOMapBase     uintptr
}

// Input, output and local modes cleared for raw operation
const (
	rawIflagClear = unix.IGNBRK | unix.BRKINT | unix.IGNPAR | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	rawOflagClear = unix.OPOST | unix.ONLCR | unix.OCRNL | unix.ONOCR | unix.ONLRET | unix.OFILL
	rawLflagClear = unix.ISIG | unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHOK |
		unix.ECHONL | unix.NOFLSH | unix.TOSTOP | unix.IEXTEN
)

// Configure applies lc to the terminal referred to by fd. Every field is
// attempted; all failures are returned together in a *ConfigError.
func Configure(fd int, lc LineConfig) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return &ConfigError{Failures: []error{fmt.Errorf("%w: %w", ErrGetAttributes, err)}}
	}

	var failures []error
	fail := func(cause error, err error) {
		failures = append(failures, fmt.Errorf("%w: %w", cause, err))
	}

	speed, err := getBaudRate(lc.BaudRate)
	if err != nil {
		fail(ErrSetInputSpeed, err)
		fail(ErrSetOutputSpeed, err)
	} else {
		termios.Cflag = (termios.Cflag &^ unix.CBAUD) | speed
		termios.Ispeed = speed
		termios.Ospeed = speed
	}

	if size, err := dataBitsFlag(lc.DataBits); err != nil {
		failures = append(failures, err)
	} else {
		termios.Cflag = (termios.Cflag &^ unix.CSIZE) | size
	}

	if par, err := parityFlags(lc.Parity); err != nil {
		failures = append(failures, err)
	} else {
		termios.Cflag = (termios.Cflag &^ (unix.PARENB | unix.PARODD)) | par
	}

	if stop, err := stopBitsFlag(lc.StopBits); err != nil {
		failures = append(failures, err)
	} else {
		termios.Cflag = (termios.Cflag &^ unix.CSTOPB) | stop
	}

	makeRaw(termios)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		fail(ErrSetAttributes, err)
	}

	if lc.LowLatency {
		if err := setLowLatency(fd); err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return &ConfigError{Failures: failures}
	}
	return nil
}

// makeRaw puts termios into non-canonical mode with error marking. n_tty
// only marks framing and parity errors when INPCK is set, so it is on
// regardless of parity; a line without parity never reports a parity error.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= rawIflagClear
	t.Iflag |= unix.PARMRK | unix.INPCK
	t.Oflag &^= rawOflagClear
	t.Lflag &^= rawLflagClear
	t.Cflag &^= unix.CRTSCTS
	t.Cflag |= unix.CREAD | unix.CLOCAL | unix.HUPCL

	t.Cc[unix.VINTR] = 3
	t.Cc[unix.VQUIT] = 34
	t.Cc[unix.VERASE] = 8
	t.Cc[unix.VKILL] = 21
	t.Cc[unix.VEOF] = 4
	t.Cc[unix.VEOL] = 0
	t.Cc[unix.VSTART] = 17
	t.Cc[unix.VSTOP] = 19
	t.Cc[unix.VSUSP] = 0

	// One byte per read, 100ms inter-character fallback
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 1
}

func dataBitsFlag(bits int) (uint32, error) {
	switch bits {
	case 5:
		return unix.CS5, nil
	case 6:
		return unix.CS6, nil
	case 7:
		return unix.CS7, nil
	case 8:
		return unix.CS8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidDataBits, bits)
	}
}

func parityFlags(p Parity) (uint32, error) {
	switch p {
	case ParityNone:
		return 0, nil
	case ParityOdd:
		return unix.PARENB | unix.PARODD, nil
	case ParityEven:
		return unix.PARENB, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidParity, p)
	}
}

func stopBitsFlag(bits int) (uint32, error) {
	switch bits {
	case 1:
		return 0, nil
	case 2:
		return unix.CSTOPB, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidStopBits, bits)
	}
}

// setLowLatency sets ASYNC_LOW_LATENCY through TIOCGSERIAL/TIOCSSERIAL.
// Drivers without serial_struct support (USB CDC, pty) fail the get.
func setLowLatency(fd int) error {
	var ss serialStruct
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCGSERIAL), uintptr(unsafe.Pointer(&ss))); errno != 0 {
		return fmt.Errorf("%w: %w", ErrLowLatencyGet, errno)
	}
	ss.Flags |= asyncLowLatency
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCSSERIAL), uintptr(unsafe.Pointer(&ss))); errno != 0 {
		return fmt.Errorf("%w: %w", ErrLowLatencySet, errno)
	}
	return nil
}
