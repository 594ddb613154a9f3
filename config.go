package serial

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return fmt.Sprintf("parity(%d)", int(p))
	}
}

// Letter returns the single character used in "8N1" style notation
func (p Parity) Letter() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "N"
	}
}

// ParseParity accepts none/odd/even or their first letter
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return ParityNone, nil
	case "o", "odd":
		return ParityOdd, nil
	case "e", "even":
		return ParityEven, nil
	default:
		return ParityNone, fmt.Errorf("%w: %q", ErrInvalidParity, s)
	}
}

// LineConfig describes the electrical framing of the line. It is applied as a
// whole by Configure; the zero value is not valid.
type LineConfig struct {
	BaudRate   int
	DataBits   int
	Parity     Parity
	StopBits   int
	LowLatency bool
}

// DefaultLineConfig returns 19200 8N1 without low latency
func DefaultLineConfig() LineConfig {
	return LineConfig{
		BaudRate: 19200,
		DataBits: 8,
		Parity:   ParityNone,
		StopBits: 1,
	}
}

// String renders the configuration as "19200 8N1"
func (c LineConfig) String() string {
	s := fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, c.Parity.Letter(), c.StopBits)
	if c.LowLatency {
		s += " low-latency"
	}
	return s
}

// ParityEnabled reports whether the receiver checks parity
func (c LineConfig) ParityEnabled() bool {
	return c.Parity == ParityOdd || c.Parity == ParityEven
}

// ReadTimeout is the round-trip wait derived from the baud rate
func (c LineConfig) ReadTimeout() (time.Duration, error) {
	return GetTimeout(c.BaudRate)
}

// Clock returns the current time. A non-nil error marks the timestamp invalid.
type Clock func() (time.Time, error)

// Config holds the configuration for opening a serial port
type Config struct {
	Line    LineConfig
	LockDir string
	NoLock  bool
	Clock   Clock
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Line:    DefaultLineConfig(),
		LockDir: DefaultLockDir,
		Clock:   RealtimeClock,
	}
}

// WithLineConfig replaces the whole line configuration
func WithLineConfig(lc LineConfig) Option {
	return func(c *Config) error {
		if err := lc.Validate(); err != nil {
			return err
		}
		c.Line = lc
		return nil
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.Line.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if _, err := dataBitsFlag(bits); err != nil {
			return err
		}
		c.Line.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return fmt.Errorf("%w: %d", ErrInvalidStopBits, bits)
		}
		c.Line.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParityEven {
			return fmt.Errorf("%w: %v", ErrInvalidParity, parity)
		}
		c.Line.Parity = parity
		return nil
	}
}

// WithLowLatency requests ASYNC_LOW_LATENCY from the UART driver
func WithLowLatency(enabled bool) Option {
	return func(c *Config) error {
		c.Line.LowLatency = enabled
		return nil
	}
}

// WithLockDir overrides the lock directory (default /var/lock)
func WithLockDir(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return ErrInvalidConfig
		}
		c.LockDir = dir
		return nil
	}
}

// WithoutLock opens the device without taking the UUCP lock
func WithoutLock() Option {
	return func(c *Config) error {
		c.NoLock = true
		return nil
	}
}

// WithClock replaces the timestamp source used by the transport
func WithClock(clock Clock) Option {
	return func(c *Config) error {
		if clock == nil {
			return ErrInvalidConfig
		}
		c.Clock = clock
		return nil
	}
}

// Validate checks every field, returning a ConfigError naming each invalid one
func (c LineConfig) Validate() error {
	var failures []error
	if _, err := getBaudRate(c.BaudRate); err != nil {
		failures = append(failures, fmt.Errorf("%w: %d", err, c.BaudRate))
	}
	if _, err := dataBitsFlag(c.DataBits); err != nil {
		failures = append(failures, err)
	}
	if _, err := parityFlags(c.Parity); err != nil {
		failures = append(failures, err)
	}
	if _, err := stopBitsFlag(c.StopBits); err != nil {
		failures = append(failures, err)
	}
	if len(failures) > 0 {
		return &ConfigError{Failures: failures}
	}
	return nil
}

// baudEntry pairs the termios speed constant with the worst-case round trip
// observed at that speed
type baudEntry struct {
	speed   uint32
	timeout time.Duration
}

var baudTable = map[int]baudEntry{
	50:     {unix.B50, 500 * time.Millisecond},
	75:     {unix.B75, 500 * time.Millisecond},
	110:    {unix.B110, 500 * time.Millisecond},
	134:    {unix.B134, 300 * time.Millisecond},
	150:    {unix.B150, 200 * time.Millisecond},
	200:    {unix.B200, 300 * time.Millisecond},
	300:    {unix.B300, 200 * time.Millisecond},
	600:    {unix.B600, 500 * time.Millisecond},
	1200:   {unix.B1200, 200 * time.Millisecond},
	1800:   {unix.B1800, 400 * time.Millisecond},
	2400:   {unix.B2400, 200 * time.Millisecond},
	4800:   {unix.B4800, 150 * time.Millisecond},
	9600:   {unix.B9600, 300 * time.Millisecond},
	19200:  {unix.B19200, 300 * time.Millisecond},
	38400:  {unix.B38400, 200 * time.Millisecond},
	57600:  {unix.B57600, 200 * time.Millisecond},
	115200: {unix.B115200, 300 * time.Millisecond},
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	e, ok := baudTable[rate]
	if !ok {
		return 0, ErrInvalidBaudRate
	}
	return e.speed, nil
}

// GetTimeout returns the default read timeout for a supported baud rate
func GetTimeout(rate int) (time.Duration, error) {
	e, ok := baudTable[rate]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBaudRate, rate)
	}
	return e.timeout, nil
}

// SupportedBaudRates lists the accepted baud rates in ascending order
func SupportedBaudRates() []int {
	rates := make([]int, 0, len(baudTable))
	for r := range baudTable {
		rates = append(rates, r)
	}
	sort.Ints(rates)
	return rates
}
