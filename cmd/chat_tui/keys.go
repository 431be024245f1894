package chat_tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Send     key.Binding
	Advance  key.Binding
	Cancel   key.Binding
	Skip     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func NewKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Advance: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "continue the story"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "stop the reply"),
		),
		Skip: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "skip intro"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}
