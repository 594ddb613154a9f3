package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/tui/colors"
	"github.com/the-moog/serbert/internal/tui/styles"
)

// RunInfo is the static part of the status bar
type RunInfo struct {
	Line serial.LineConfig
	Mode bert.Mode
}

type StatusBar struct {
	portPath string
	state    styles.RunState
	err      error
	width    int
	info     *RunInfo
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{portPath: portPath}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetRunInfo(info *RunInfo) {
	sb.info = info
}

func (sb *StatusBar) SetState(state styles.RunState, err error) {
	sb.state = state
	sb.err = err
}

func (sb *StatusBar) State() styles.RunState {
	return sb.state
}

// View renders the bar: state badge, port and indicator on the left, line
// settings, mode and elapsed time on the right
func (sb *StatusBar) View(elapsed string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	badgeColor := colors.Green
	switch sb.state {
	case styles.StateStopping:
		badgeColor = colors.Yellow
	case styles.StateFinished:
		badgeColor = colors.Blue
	case styles.StateFailed:
		badgeColor = colors.Red
	}
	badge := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(badgeColor).
		Bold(true).
		Padding(0, 1).
		Render(sb.state.String())

	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portPath)

	indicator := "●"
	if sb.err != nil {
		indicator = "✗"
	} else if sb.state != styles.StateRunning {
		indicator = "○"
	}
	indicator = styles.GetStatusStyle(sb.state).Render(indicator)

	details := "⚡ serial"
	if sb.info != nil {
		details = fmt.Sprintf("⚡ %s │ %s", sb.info.Line, sb.info.Mode)
	}
	details = lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(details)

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(elapsed)

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	left := lipgloss.JoinHorizontal(lipgloss.Left, badge, port, indicator, divider)
	right := lipgloss.JoinHorizontal(lipgloss.Left, details, divider, clock)

	spacerWidth := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	bar := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width)
	return bar.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, right))
}

// ErrorLine renders the failure that ended the run, if any
func (sb *StatusBar) ErrorLine() string {
	if sb.err == nil {
		return ""
	}
	return styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", sb.err))
}
