package components

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/report"
	"github.com/the-moog/serbert/internal/tui/styles"
)

// Counters renders the live totals and round-trip statistics of a run
type Counters struct {
	snap  bert.Snapshot
	stats bool
}

func NewCounters(showStats bool) *Counters {
	return &Counters{stats: showStats}
}

func (c *Counters) Update(s bert.Snapshot) {
	c.snap = s
}

func (c *Counters) Snapshot() bert.Snapshot {
	return c.snap
}

// Rate is the error ratio so far, zero before the first cycle
func (c *Counters) Rate() float64 {
	if c.snap.Cycles == 0 {
		return 0
	}
	return float64(c.snap.Counters.Errors) / float64(c.snap.Cycles)
}

func (c *Counters) View() string {
	s := c.snap
	row := func(label, value string, bad bool) string {
		vs := styles.ValueStyle
		if bad {
			vs = styles.ErrorValueStyle
		}
		return lipgloss.JoinHorizontal(lipgloss.Left, styles.LabelStyle.Render(label), vs.Render(value))
	}

	lines := []string{
		row("Sent", report.Exact(s.Counters.BytesSent), false),
		row("Errors", report.Exact(s.Counters.Errors), s.Counters.Errors > 0),
		row("Timeouts", report.Exact(s.Counters.Timeouts), s.Counters.Timeouts > 0),
		row("Corrupt", report.Exact(s.Counters.CorruptBytes), s.Counters.CorruptBytes > 0),
		row("Error rate", formatRate(c.Rate()), c.Rate() > 0),
		row("Run time", report.Clock(s.Elapsed.Truncate(time.Second)), false),
	}
	if c.stats {
		rs := s.Stats
		lines = append(lines,
			row("Min return", report.Measured(rs.Min()), false),
			row("Max return", report.Measured(rs.Max()), false),
			row("Avg return", report.Measured(rs.Average()), false),
		)
	}
	return styles.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatRate(r float64) string {
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'e', 3, 64)
}
