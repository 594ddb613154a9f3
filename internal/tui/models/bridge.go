package models

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/the-moog/serbert/internal/bert"
)

// Sender is the part of tea.Program the bridge needs
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards engine callbacks to a running program. Only error events
// and snapshots cross over; per-byte traffic stays in the engine.
type Bridge struct {
	to Sender
}

var _ bert.Observer = (*Bridge)(nil)

func NewBridge(to Sender) *Bridge {
	return &Bridge{to: to}
}

func (b *Bridge) OnEvent(ev bert.Event) {
	if ev.IsError() {
		b.to.Send(EventMsg{Event: ev})
	}
}

func (b *Bridge) OnStatus(s bert.Snapshot) {
	b.to.Send(StatusMsg{Snapshot: s})
}
