// Package models holds the bubbletea model of the run dashboard.
package models

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/report"
	"github.com/the-moog/serbert/internal/tui/components"
	"github.com/the-moog/serbert/internal/tui/keys"
	"github.com/the-moog/serbert/internal/tui/styles"
)

// Controller receives the operator's requests; bert.CommandQueue is one
type Controller interface {
	Stop()
	RequestStatus()
}

// StatusMsg carries an engine snapshot
type StatusMsg struct {
	Snapshot bert.Snapshot
}

// EventMsg carries an error event
type EventMsg struct {
	Event bert.Event
}

// DoneMsg is sent once the engine has returned
type DoneMsg struct {
	Run *bert.TestRun
	Err error
}

type tickMsg time.Time

// RunModel is the dashboard shown by `serbert run --tui`
type RunModel struct {
	control   Controller
	statusBar *components.StatusBar
	counters  *components.Counters
	events    *components.EventTable
	help      help.Model
	keys      keys.RunKeys

	showStats bool
	started   time.Time
	elapsed   time.Duration
	pinned    []string
	width     int
	height    int
	run       *bert.TestRun
}

var _ tea.Model = (*RunModel)(nil)

// NewRunModel builds the dashboard for one run
func NewRunModel(portPath string, info components.RunInfo, showStats bool, control Controller) *RunModel {
	sb := components.NewStatusBar(portPath)
	sb.SetRunInfo(&info)
	return &RunModel{
		control:   control,
		statusBar: sb,
		counters:  components.NewCounters(showStats),
		events:    components.NewEventTable(80, 10),
		help:      help.New(),
		keys:      keys.NewRunKeys(),
		showStats: showStats,
		started:   time.Now(),
	}
}

// Result is the finished run, nil until DoneMsg arrived
func (m *RunModel) Result() *bert.TestRun {
	return m.run
}

func (m *RunModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.statusBar.SetWidth(msg.Width)
		m.events.SetSize(msg.Width, m.eventHeight())

	case tickMsg:
		if m.run == nil {
			m.elapsed = time.Since(m.started)
			return m, tick()
		}

	case StatusMsg:
		m.counters.Update(msg.Snapshot)
		m.elapsed = msg.Snapshot.Elapsed
		if msg.Snapshot.Requested {
			m.pin(msg.Snapshot)
		}

	case EventMsg:
		m.events.Add(msg.Event)

	case DoneMsg:
		m.run = msg.Run
		if msg.Run != nil {
			snap := msg.Run.Snapshot()
			m.counters.Update(snap)
			m.elapsed = snap.Elapsed
		}
		if msg.Err != nil {
			m.statusBar.SetState(styles.StateFailed, msg.Err)
		} else {
			m.statusBar.SetState(styles.StateFinished, nil)
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Stop):
			if m.statusBar.State() == styles.StateRunning {
				m.statusBar.SetState(styles.StateStopping, nil)
				m.control.Stop()
			}
		case key.Matches(msg, m.keys.Status):
			m.control.RequestStatus()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.events.SetSize(m.width, m.eventHeight())
		}
	}
	return m, nil
}

// pin keeps the last few operator-requested summaries on screen
func (m *RunModel) pin(s bert.Snapshot) {
	line := report.Clock(s.Elapsed) + report.Summary(s, report.Options{Stats: m.showStats})
	m.pinned = append(m.pinned, line)
	if len(m.pinned) > 3 {
		m.pinned = m.pinned[len(m.pinned)-3:]
	}
}

func (m *RunModel) eventHeight() int {
	// counters panel, pinned lines, help and status bar
	reserved := 14 + len(m.pinned) + 2
	if m.help.ShowAll {
		reserved += 2
	}
	return max(m.height-reserved, 3)
}

func (m *RunModel) View() string {
	parts := []string{
		styles.TitleStyle.Render("serbert"),
		m.counters.View(),
	}
	parts = append(parts, m.pinned...)
	parts = append(parts, styles.ContentBorderStyle.Render(m.events.View()))
	if e := m.statusBar.ErrorLine(); e != "" {
		parts = append(parts, e)
	}
	parts = append(parts, m.help.View(m.keys), m.statusBar.View(report.Clock(m.elapsed)))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
