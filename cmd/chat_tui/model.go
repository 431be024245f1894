package chat_tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/strandapp/strand/pkg/chat"
	"github.com/strandapp/strand/pkg/classify"
	"github.com/strandapp/strand/pkg/sanitize"
)

// Model renders one chat session. All conversation state lives in the
// Session; the model only holds the latest snapshot and widget state.
type Model struct {
	Session  *chat.Session
	Snapshot chat.Snapshot

	Input    textinput.Model
	Viewport viewport.Model
	Spinner  spinner.Model
	KeyMap   KeyMap

	Classifier classify.Classifier
	Sanitizer  sanitize.Sanitizer

	Width  int
	Height int
	Ready  bool

	// Notice is the most recent user-facing notice; cleared on next send.
	Notice *chat.Notice
}

// New creates the TUI model for an attached session.
func New(session *chat.Session) Model {
	input := textinput.New()
	input.Placeholder = "Say something..."
	input.CharLimit = 4000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		Session:    session,
		Snapshot:   session.Snapshot(),
		Input:      input,
		Spinner:    spin,
		KeyMap:     NewKeyMap(),
		Classifier: classify.Split,
		Sanitizer:  sanitize.NewPolicy(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.Spinner.Tick, waitForEvent(m.Session))
}
