package serial

import (
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// MaxTimeout is the longest wait accepted for a single readiness check
const MaxTimeout = 9999999 * time.Microsecond

// Readiness is the result of a bounded wait on the descriptor
type Readiness int

const (
	Ready Readiness = iota
	Timeout
	Failure
)

func (r Readiness) String() string {
	switch r {
	case Ready:
		return "ready"
	case Timeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Status is the set of conditions attached to a transferred byte
type Status uint8

const (
	StatusOK Status = 1 << iota
	StatusFailure
	StatusOverrun
	StatusFramingError
	StatusParityError
	StatusBreak
	StatusTimeReadFailed
)

// Has reports whether every bit in flag is set
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// LineError reports a framing, parity or break condition
func (s Status) LineError() bool {
	return s&(StatusFramingError|StatusParityError|StatusBreak) != 0
}

func (s Status) String() string {
	if s == 0 {
		return "none"
	}
	names := []struct {
		flag Status
		name string
	}{
		{StatusOK, "ok"},
		{StatusFailure, "failure"},
		{StatusOverrun, "overrun"},
		{StatusFramingError, "framing"},
		{StatusParityError, "parity"},
		{StatusBreak, "break"},
		{StatusTimeReadFailed, "time-read-failed"},
	}
	var parts []string
	for _, n := range names {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// TransferOutcome describes one byte read from or written to the line.
// Byte is meaningless when StatusFailure is set and Time is meaningless when
// StatusTimeReadFailed is set. Err holds the OS error behind a failure.
type TransferOutcome struct {
	Status Status
	Byte   byte
	Time   time.Time
	Err    error
}

// TimeValid reports whether Time was captured
func (o TransferOutcome) TimeValid() bool {
	return !o.Status.Has(StatusTimeReadFailed)
}

// RealtimeClock reads CLOCK_REALTIME
func RealtimeClock() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Unix()), nil
}

// waitFD blocks until fd reports events or timeout expires. A signal
// arriving meanwhile does not end the wait early.
func waitFD(fd int, events int16, timeout time.Duration) (Readiness, error) {
	if timeout < 0 {
		timeout = 0
	}
	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}

	for {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		n, err := unix.Ppoll(fds, &ts, nil)
		if err == unix.EINTR {
			timeout = max(time.Until(deadline), 0)
			continue
		}
		if err != nil {
			return Failure, err
		}
		if n == 0 {
			return Timeout, nil
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return Failure, unix.EIO
		}
		if fds[0].Revents&events == 0 {
			// POLLHUP alone: the remote end is gone
			return Failure, unix.EIO
		}
		return Ready, nil
	}
}

// receiveByte performs one read asking for one byte
func receiveByte(fd int, clock Clock) TransferOutcome {
	var buf [1]byte
	n, err := unix.Read(fd, buf[:])
	out := stamp(clock)
	switch {
	case err != nil:
		out.Status |= StatusFailure
		out.Err = err
	case n <= 0:
		out.Status |= StatusFailure
		out.Err = unix.EIO
	default:
		out.Byte = buf[0]
		out.Status |= StatusOK
		// A driver returning more than requested is flagged, not trusted
		if n > 1 {
			out.Status |= StatusOverrun
		}
	}
	return out
}

// transmitByte performs one write of one byte
func transmitByte(fd int, b byte, clock Clock) TransferOutcome {
	buf := [1]byte{b}
	n, err := unix.Write(fd, buf[:])
	out := stamp(clock)
	out.Byte = b
	switch {
	case err != nil:
		out.Status |= StatusFailure
		out.Err = err
	case n != 1:
		out.Status |= StatusFailure
		out.Err = unix.EIO
	default:
		out.Status |= StatusOK
	}
	return out
}

func stamp(clock Clock) TransferOutcome {
	t, err := clock()
	if err != nil {
		return TransferOutcome{Status: StatusTimeReadFailed}
	}
	return TransferOutcome{Time: t}
}
