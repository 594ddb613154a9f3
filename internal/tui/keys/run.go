package keys

import "github.com/charmbracelet/bubbles/key"

// RunKeys are the dashboard bindings. Stop and Status match the keys of the
// line-mode tool.
type RunKeys struct {
	Stop   key.Binding
	Status key.Binding
	Help   key.Binding
}

func NewRunKeys() RunKeys {
	return RunKeys{
		Stop: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "stop test"),
		),
		Status: key.NewBinding(
			key.WithKeys("i", "I"),
			key.WithHelp("i", "intermediate results"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

func (k RunKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Status, k.Help, k.Stop}
}

func (k RunKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Status, k.Stop},
		{k.Help},
	}
}
