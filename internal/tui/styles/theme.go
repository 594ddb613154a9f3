package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/the-moog/serbert/internal/tui/colors"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusRunningStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusStoppingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	StatusFinishedStyle = lipgloss.NewStyle().
				Foreground(colors.Blue).
				Bold(true)

	StatusFailedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	// Counter panel
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(colors.Text).
			Bold(true)

	ErrorValueStyle = lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)
)

// RunState is the lifecycle of a dashboard run
type RunState int

const (
	StateRunning RunState = iota
	StateStopping
	StateFinished
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateFinished:
		return "DONE"
	default:
		return "FAILED"
	}
}

// GetStatusStyle returns the indicator style for a run state
func GetStatusStyle(s RunState) lipgloss.Style {
	switch s {
	case StateRunning:
		return StatusRunningStyle
	case StateStopping:
		return StatusStoppingStyle
	case StateFinished:
		return StatusFinishedStyle
	default:
		return StatusFailedStyle
	}
}
