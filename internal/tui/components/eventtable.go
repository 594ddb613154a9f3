package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/report"
	"github.com/the-moog/serbert/internal/tui/colors"
)

// MaxEvents bounds the history kept by an EventTable
const MaxEvents = 500

// EventTable lists the most recent error events, newest at the bottom
type EventTable struct {
	table  table.Model
	events []bert.Event
}

func NewEventTable(width, height int) *EventTable {
	t := table.New(
		table.WithColumns(eventColumns(width)),
		table.WithFocused(false),
		table.WithHeight(max(height, 3)),
		table.WithWidth(max(width, 60)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Bold(false)
	t.SetStyles(s)

	return &EventTable{table: t}
}

func eventColumns(width int) []table.Column {
	width = max(width, 60)
	timeWidth := 12
	cycleWidth := 10
	msgWidth := max(width-timeWidth-cycleWidth-8, 20)
	return []table.Column{
		{Title: "Time", Width: timeWidth},
		{Title: "Cycle", Width: cycleWidth},
		{Title: "Event", Width: msgWidth},
	}
}

func (et *EventTable) SetSize(width, height int) {
	et.table.SetColumns(eventColumns(width))
	et.table.SetHeight(max(height, 3))
	et.table.SetWidth(max(width, 60))
	et.table.UpdateViewport()
}

// Add records ev if it is an error event and reports whether it was kept
func (et *EventTable) Add(ev bert.Event) bool {
	if _, ok := report.EventLine(ev); !ok {
		return false
	}
	et.events = append(et.events, ev)
	if len(et.events) > MaxEvents {
		et.events = et.events[len(et.events)-MaxEvents:]
	}
	et.refresh()
	return true
}

func (et *EventTable) Len() int {
	return len(et.events)
}

func (et *EventTable) refresh() {
	rows := make([]table.Row, len(et.events))
	for i, ev := range et.events {
		rows[i] = eventRow(ev)
	}
	et.table.SetRows(rows)
	et.table.GotoBottom()
}

func eventRow(ev bert.Event) table.Row {
	ts := ""
	if !ev.Time.IsZero() {
		ts = ev.Time.Local().Format("15:04:05.000")
	}
	line, _ := report.EventLine(ev)
	return table.Row{ts, fmt.Sprintf("%d", ev.Cycle), line}
}

func (et *EventTable) View() string {
	if len(et.events) == 0 {
		return lipgloss.NewStyle().Foreground(colors.Overlay1).Render("No errors so far")
	}
	return et.table.View()
}
