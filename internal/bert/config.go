package bert

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/the-moog/serbert"
)

const (
	// DefaultCount is the number of bytes sent when no mode is chosen
	DefaultCount = 1024
	// DefaultWriteTimeout bounds the wait for room in the output queue
	DefaultWriteTimeout = 50 * time.Millisecond
	// PaceChunk is the longest stretch of pacing or readiness waiting
	// without a stop check
	PaceChunk = 100 * time.Millisecond
	// MinTimeout is the shortest accepted read or write timeout
	MinTimeout = time.Microsecond
)

var (
	ErrInvalidCount    = errors.New("byte count must be at least 1")
	ErrInvalidDuration = errors.New("test duration must be positive")
	ErrInvalidTimeout  = errors.New("timeout out of range")
	ErrInvalidPace     = errors.New("pace out of range")
	ErrInvalidPattern  = errors.New("invalid hex pattern")
	ErrNoSource        = errors.New("no byte source")
	ErrNilRun          = errors.New("nil test run")
)

// ModeKind selects how a run terminates
type ModeKind int

const (
	ModeCount ModeKind = iota
	ModeDuration
	ModeContinuous
)

func (k ModeKind) String() string {
	switch k {
	case ModeCount:
		return "count"
	case ModeDuration:
		return "duration"
	case ModeContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("mode(%d)", int(k))
	}
}

// Mode is the termination policy of a run
type Mode struct {
	Kind     ModeKind
	Count    uint64
	Duration time.Duration
}

// ByCount stops after n cycles
func ByCount(n uint64) Mode {
	return Mode{Kind: ModeCount, Count: n}
}

// ByDuration stops once d of wall-clock time has elapsed
func ByDuration(d time.Duration) Mode {
	return Mode{Kind: ModeDuration, Duration: d}
}

// Continuous runs until stopped
func Continuous() Mode {
	return Mode{Kind: ModeContinuous}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeCount:
		return fmt.Sprintf("%d bytes", m.Count)
	case ModeDuration:
		return m.Duration.String()
	default:
		return "continuous"
	}
}

// Config controls one BERT run
type Config struct {
	Mode           Mode
	Source         ByteSource
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Pace           time.Duration
	StatusInterval time.Duration
	// Clock drives ByDuration termination; a clock error stops the run
	Clock serial.Clock
}

// DefaultConfig sends 1024 bytes of the ascending reference sequence
// with the 19200 baud read timeout
func DefaultConfig() Config {
	return Config{
		Mode:         ByCount(DefaultCount),
		Source:       NewSequence(DefaultPattern()),
		ReadTimeout:  300 * time.Millisecond,
		WriteTimeout: DefaultWriteTimeout,
		Clock:        serial.RealtimeClock,
	}
}

// Validate reports the first invalid field
func (c Config) Validate() error {
	switch c.Mode.Kind {
	case ModeCount:
		if c.Mode.Count == 0 {
			return ErrInvalidCount
		}
	case ModeDuration:
		if c.Mode.Duration <= 0 {
			return ErrInvalidDuration
		}
	case ModeContinuous:
	default:
		return fmt.Errorf("unknown mode %v", c.Mode.Kind)
	}
	if c.Source == nil {
		return ErrNoSource
	}
	if err := checkTimeout("read", c.ReadTimeout); err != nil {
		return err
	}
	if err := checkTimeout("write", c.WriteTimeout); err != nil {
		return err
	}
	if c.Pace < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPace, c.Pace)
	}
	if c.StatusInterval < 0 {
		return fmt.Errorf("status interval must not be negative: %v", c.StatusInterval)
	}
	return nil
}

func checkTimeout(which string, d time.Duration) error {
	if d < MinTimeout || d > serial.MaxTimeout {
		return fmt.Errorf("%w: %s timeout %v not in %v..%v", ErrInvalidTimeout, which, d, MinTimeout, serial.MaxTimeout)
	}
	return nil
}

// TimeoutFromMicros converts a microsecond count given on the command line
func TimeoutFromMicros(us int64) (time.Duration, error) {
	d := time.Duration(us) * time.Microsecond
	if us < 1 || d > serial.MaxTimeout {
		return 0, fmt.Errorf("%w: %dus not in 1..%d", ErrInvalidTimeout, us, serial.MaxTimeout.Microseconds())
	}
	return d, nil
}

// PaceFromSeconds converts a pacing delay in seconds. Values from 1ns up to
// math.MaxInt64 seconds are accepted; anything past the range of
// time.Duration is clamped to it.
func PaceFromSeconds(sec float64) (time.Duration, error) {
	if math.IsNaN(sec) || sec < 1e-9 || sec > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %g seconds", ErrInvalidPace, sec)
	}
	ns := sec * 1e9
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(math.Round(ns)), nil
}
