package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/bert"
)

// hexPerLine keeps the pattern dump inside an 80 column terminal
const hexPerLine = 26

// Settings describe a run for the diagnostic banner
type Settings struct {
	Version     string
	Port        string
	Pattern     []byte // nil with Random
	Random      bool
	Line        serial.LineConfig
	ReadTimeout time.Duration
	Mode        bert.Mode
	Pace        time.Duration
}

// WriteSettings prints the banner shown in diagnostic mode
func (r *Reporter) WriteSettings(w io.Writer, s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString(s.Version + "\n\n")
	fmt.Fprintf(&b, "Port: %s\n", s.Port)
	b.WriteString("String (Hex): ")
	if s.Random {
		b.WriteString("Random\n")
	} else {
		b.WriteString(HexDump(s.Pattern))
	}
	fmt.Fprintf(&b, "Baud rate: %d\n", s.Line.BaudRate)
	fmt.Fprintf(&b, "Line: %s\n", s.Line)
	fmt.Fprintf(&b, "Read timeout: %d microsecs\n", s.ReadTimeout.Microseconds())
	fmt.Fprintf(&b, "Number multiplier: %s\n", r.opts.Multiplier)

	switch s.Mode.Kind {
	case bert.ModeCount:
		fmt.Fprintf(&b, "Bytes to send: %s\n", BigNumber(s.Mode.Count, r.opts.Multiplier))
	case bert.ModeDuration:
		fmt.Fprintf(&b, "Time to send: %s\n", Clock(s.Mode.Duration))
	case bert.ModeContinuous:
		b.WriteString("Sending continuously\n")
	}
	fmt.Fprintf(&b, "Pause between test bytes: %.9f secs\n", s.Pace.Seconds())
	if s.Line.LowLatency {
		b.WriteString("Low Latency is on\n")
	} else {
		b.WriteString("Low Latency is off\n")
	}
	b.WriteString("\n")
	fmt.Fprint(w, b.String())
}

// HexDump prints bytes as space separated hex, hexPerLine to a line. Long
// dumps start on a fresh line.
func HexDump(p []byte) string {
	var b strings.Builder
	if len(p) > hexPerLine {
		b.WriteString("\n")
	}
	for i, c := range p {
		fmt.Fprintf(&b, "%02x", c)
		if (i+1)%hexPerLine == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	b.WriteString("\n")
	return b.String()
}
