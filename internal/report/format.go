// Package report renders test progress and results in the serbert line
// format.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/the-moog/serbert/internal/stats"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Multiplier selects the prefixes used for large counts
type Multiplier int

const (
	Decimal Multiplier = iota // k, M, G
	Binary                    // Ki, Mi, Gi
)

func (m Multiplier) String() string {
	if m == Binary {
		return "Binary (1024)"
	}
	return "Decimal (1000)"
}

func (m Multiplier) base() uint64 {
	if m == Binary {
		return 1024
	}
	return 1000
}

// BigNumber prints n with six significant digits and a k, M or G prefix.
// Values below ten kilo are printed exactly.
func BigNumber(n uint64, m Multiplier) string {
	kilo := m.base()
	mega := kilo * kilo
	giga := mega * kilo

	var v float64
	var prefix string
	switch {
	case n >= giga:
		v, prefix = float64(n)/float64(giga), "G"
	case n >= mega:
		v, prefix = float64(n)/float64(mega), "M"
	case n >= 10*kilo:
		v, prefix = float64(n)/float64(kilo), "k"
		if m == Binary {
			prefix = "K"
		}
	default:
		return strconv.FormatUint(n, 10)
	}
	if m == Binary {
		prefix += "i"
	}
	return strconv.FormatFloat(v, 'g', 6, 64) + prefix
}

// Clock formats whole seconds as HH:MM:SS; hours are not wrapped
func Clock(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// Seconds formats a round-trip time as seconds with microsecond digits
func Seconds(d stats.Duration) string {
	sec, usec := d.Micros()
	return fmt.Sprintf("%d.%06d", sec, usec)
}

var printer = message.NewPrinter(language.English)

// Exact formats n with thousands separators
func Exact(n uint64) string {
	return printer.Sprintf("%d", n)
}

// Measured formats d as seconds, or "-" when there is no measurement
func Measured(d stats.Duration, ok bool) string {
	if !ok {
		return "-"
	}
	return Seconds(d)
}
