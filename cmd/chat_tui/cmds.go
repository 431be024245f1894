package chat_tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/strandapp/strand/pkg/chat"
)

type SessionEventMsg struct{ Event chat.Event }
type SnapshotMsg struct{ Snapshot chat.Snapshot }

// waitForEvent blocks on the session's event channel and forwards the next
// event into the bubbletea loop. Re-issued after every event.
func waitForEvent(s *chat.Session) tea.Cmd {
	return func() tea.Msg {
		return SessionEventMsg{Event: <-s.Events()}
	}
}

// snapshotCmd pulls a fresh render snapshot off the session loop.
func snapshotCmd(s *chat.Session) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: s.Snapshot()}
	}
}
