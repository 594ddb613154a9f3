package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/stats"
	"github.com/the-moog/serbert/internal/tui/colors"
)

// TimestampLayout prefixes every error line
const TimestampLayout = "2006-01-02 15:04:05"

// Options mirror the output flags of the run command
type Options struct {
	Multiplier Multiplier
	Stats      bool // round-trip statistics
	Verbose    bool // every TX and RX byte
	Quiet      bool // no per-error lines
}

// Reporter writes the line-mode report. It implements bert.Observer so it
// can be attached to an engine directly.
type Reporter struct {
	mu   sync.Mutex
	out  io.Writer
	errw io.Writer
	opts Options

	errStyle  lipgloss.Style
	warnStyle lipgloss.Style
	dimStyle  lipgloss.Style
}

var _ bert.Observer = (*Reporter)(nil)

// New reports to out; clock failures and internal problems go to errw
func New(out, errw io.Writer, opts Options) *Reporter {
	r := lipgloss.NewRenderer(out)
	return &Reporter{
		out:       out,
		errw:      errw,
		opts:      opts,
		errStyle:  r.NewStyle().Foreground(colors.Red),
		warnStyle: r.NewStyle().Foreground(colors.Yellow),
		dimStyle:  r.NewStyle().Foreground(colors.Overlay1),
	}
}

// Summary formats s with the reporter's options
func (r *Reporter) Summary(s bert.Snapshot) string {
	return Summary(s, r.opts)
}

// Summary is the one-line result: counts, run time and, with statistics
// enabled, the average round-trip time
func Summary(s bert.Snapshot, opts Options) string {
	var b strings.Builder
	m := opts.Multiplier
	fmt.Fprintf(&b, " sent:%s errs:%s timeouts:%s corrupt:%s",
		BigNumber(s.Counters.BytesSent, m),
		BigNumber(s.Counters.Errors, m),
		BigNumber(s.Counters.Timeouts, m),
		BigNumber(s.Counters.CorruptBytes, m))

	if !s.ClockFailed {
		if s.Elapsed < time.Second {
			b.WriteString(" run:<1sec")
		} else {
			b.WriteString(" run:" + Clock(s.Elapsed))
		}
	}
	if opts.Stats {
		b.WriteString(" Av:" + Measured(s.Stats.Average()))
	}
	return b.String()
}

// StatsBlock is the min, max and average block printed after the summary
func (r *Reporter) StatsBlock(rs *stats.RunningStats) string {
	return fmt.Sprintf("\nMin return time = %s\nMax return time = %s\nAverage return time = %s",
		Measured(rs.Min()),
		Measured(rs.Max()),
		Measured(rs.Average()))
}

// Totals lists the exact counters
func (r *Reporter) Totals(s bert.Snapshot) string {
	return fmt.Sprintf("Totals: %s sent, %s errors, %s timeouts, %s corrupt, %s samples",
		Exact(s.Counters.BytesSent),
		Exact(s.Counters.Errors),
		Exact(s.Counters.Timeouts),
		Exact(s.Counters.CorruptBytes),
		Exact(s.Stats.Count()))
}

// Final writes the closing report of a run
func (r *Reporter) Final(run *bert.TestRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := run.Snapshot()
	fmt.Fprint(r.out, r.Summary(snap))
	if r.opts.Stats {
		fmt.Fprint(r.out, r.StatsBlock(&run.Stats))
	}
	fmt.Fprintln(r.out)
}

// OnStatus prints intermediate results. Operator requests get a line of
// their own; interval updates overwrite each other in place.
func (r *Reporter) OnStatus(s bert.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := "      \r"
	if s.Requested {
		end = "\n"
	}
	fmt.Fprint(r.out, r.Summary(s)+end)
}

// OnEvent prints per-byte lines in verbose mode and timestamped error lines
// unless quiet
func (r *Reporter) OnEvent(ev bert.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case bert.EventTransmit:
		if r.opts.Verbose {
			fmt.Fprintf(r.out, "TX: %02x\n", ev.TX)
		}
	case bert.EventReceive:
		if r.opts.Verbose && !ev.Status.LineError() {
			fmt.Fprintf(r.out, "RX: %02x\n", ev.RX)
		}
	case bert.EventRoundTrip:
		if r.opts.Verbose && r.opts.Stats {
			fmt.Fprintln(r.out, r.dimStyle.Render("Char return time: "+Seconds(ev.RoundTrip)))
		}
	case bert.EventClockFailure:
		fmt.Fprintln(r.errw, "Failure reading time")
	case bert.EventFlushFailure:
		fmt.Fprintf(r.errw, "Flush failed: %v\n", ev.Err)
	default:
		if ev.IsError() && !r.opts.Quiet {
			r.errorLine(ev)
		}
	}
}

func (r *Reporter) errorLine(ev bert.Event) {
	msg, _ := EventLine(ev)
	style := r.errStyle
	if ev.Kind == bert.EventReadTimeout || ev.Kind == bert.EventWriteTimeout {
		style = r.warnStyle
	}
	fmt.Fprintln(r.out, Timestamp(ev.Time)+style.Render(msg))
}

// EventLine describes an error event without its timestamp. ok is false for
// events that are not counted as errors.
func EventLine(ev bert.Event) (line string, ok bool) {
	switch ev.Kind {
	case bert.EventLineError:
		return fmt.Sprintf("%s: TX: %02x RX: %02x", lineErrorName(ev.Status), ev.TX, ev.RX), true
	case bert.EventMismatch:
		return fmt.Sprintf("Corrupt byte: TX: %02x RX: %02x", ev.TX, ev.RX), true
	case bert.EventReadTimeout:
		return "Timeout", true
	case bert.EventWriteTimeout:
		return fmt.Sprintf("Write timeout: TX: %02x", ev.TX), true
	case bert.EventWriteFailure:
		return fmt.Sprintf("Write failed: TX: %02x: %v", ev.TX, ev.Err), true
	case bert.EventReadFailure:
		return fmt.Sprintf("Read failed: TX: %02x: %v", ev.TX, ev.Err), true
	}
	return ev.Kind.String(), false
}

func lineErrorName(s serial.Status) string {
	switch {
	case s.Has(serial.StatusBreak):
		return "Break"
	case s.Has(serial.StatusParityError):
		return "Parity error"
	default:
		return "Framing error"
	}
}

// Timestamp is the prefix of an error line, empty when the event carries no
// time
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimestampLayout) + " - "
}
