package bert

import (
	"time"

	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/stats"
)

// EventKind classifies what happened in a cycle
type EventKind int

const (
	EventTransmit EventKind = iota
	EventReceive
	EventRoundTrip
	EventWriteTimeout
	EventWriteFailure
	EventReadTimeout
	EventReadFailure
	EventLineError
	EventMismatch
	EventFlushFailure
	EventClockFailure
)

func (k EventKind) String() string {
	switch k {
	case EventTransmit:
		return "transmit"
	case EventReceive:
		return "receive"
	case EventRoundTrip:
		return "round trip"
	case EventWriteTimeout:
		return "write timeout"
	case EventWriteFailure:
		return "write failure"
	case EventReadTimeout:
		return "timeout"
	case EventReadFailure:
		return "read failure"
	case EventLineError:
		return "line error"
	case EventMismatch:
		return "corrupt byte"
	case EventFlushFailure:
		return "flush failure"
	case EventClockFailure:
		return "clock failure"
	default:
		return "unknown"
	}
}

// Event is emitted for every classified step of a cycle
type Event struct {
	Kind   EventKind
	Cycle  uint64
	TX     byte
	RX     byte
	Status serial.Status
	// Time is the transfer timestamp when one exists, otherwise the wall
	// clock at emission
	Time      time.Time
	RoundTrip stats.Duration
	Err       error
}

// IsError reports whether the event was counted as an error
func (e Event) IsError() bool {
	switch e.Kind {
	case EventWriteTimeout, EventWriteFailure, EventReadTimeout, EventReadFailure, EventLineError, EventMismatch:
		return true
	}
	return false
}

// Observer receives events and snapshots from the engine's goroutine.
// Implementations must return quickly; they run inside the test loop.
type Observer interface {
	OnEvent(Event)
	OnStatus(Snapshot)
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event)     {}
func (nopObserver) OnStatus(Snapshot) {}
