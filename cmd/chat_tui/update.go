package chat_tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/strandapp/strand/pkg/chat"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		vpHeight := msg.Height - chromeHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, vpHeight)
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = vpHeight
		}
		m.Viewport.SetContent(m.renderTranscript())
		m.Viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.KeyMap.Quit):
			m.Session.Close()
			return m, tea.Quit

		case key.Matches(msg, m.KeyMap.Send):
			return m.handleSend()

		case key.Matches(msg, m.KeyMap.Advance):
			m.Notice = nil
			if err := m.Session.Advance(m.Snapshot.Flags.RoomID); err != nil {
				m.Notice = noticeForErr(err)
			}
			return m, snapshotCmd(m.Session)

		case key.Matches(msg, m.KeyMap.Cancel):
			m.Session.CancelTurn()
			return m, snapshotCmd(m.Session)

		case key.Matches(msg, m.KeyMap.Skip):
			m.Session.SkipOpening()
			return m, snapshotCmd(m.Session)

		case key.Matches(msg, m.KeyMap.PageUp):
			m.Viewport.HalfViewUp()
			return m, nil

		case key.Matches(msg, m.KeyMap.PageDown):
			m.Viewport.HalfViewDown()
			return m, nil
		}

		// Bare digits pick a pending choice when the input is empty.
		if len(m.Snapshot.Choices) > 0 && m.Input.Value() == "" {
			if n, err := strconv.Atoi(msg.String()); err == nil {
				return m.handleChoice(n)
			}
		}

		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd

	case SessionEventMsg:
		switch ev := msg.Event.(type) {
		case chat.NoticePosted:
			n := ev.Notice
			m.Notice = &n
		case chat.SessionEnded:
			cmds = append(cmds, tea.Quit)
		}
		cmds = append(cmds, snapshotCmd(m.Session), waitForEvent(m.Session))
		return m, tea.Batch(cmds...)

	case SnapshotMsg:
		m.Snapshot = msg.Snapshot
		if m.Ready {
			atBottom := m.Viewport.AtBottom()
			m.Viewport.SetContent(m.renderTranscript())
			if atBottom {
				m.Viewport.GotoBottom()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

func (m Model) handleSend() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.Input.Value())
	if text == "" {
		return m, nil
	}
	m.Notice = nil

	// A lone digit doubles as a choice pick while choices are on screen.
	if len(m.Snapshot.Choices) > 0 {
		if n, err := strconv.Atoi(text); err == nil {
			m.Input.Reset()
			return m.handleChoice(n)
		}
	}

	if err := m.Session.SubmitText(text, m.Snapshot.Flags.RoomID); err != nil {
		m.Notice = noticeForErr(err)
		return m, snapshotCmd(m.Session)
	}
	m.Input.Reset()
	return m, snapshotCmd(m.Session)
}

func (m Model) handleChoice(n int) (tea.Model, tea.Cmd) {
	if n < 1 || n > len(m.Snapshot.Choices) {
		return m, nil
	}
	m.Notice = nil
	choice := m.Snapshot.Choices[n-1]
	if err := m.Session.SelectChoice(choice.ID, m.Snapshot.Flags.RoomID); err != nil {
		m.Notice = noticeForErr(err)
	}
	return m, snapshotCmd(m.Session)
}

// noticeForErr maps synchronous command rejections onto display notices.
// Async failures already arrive as NoticePosted events.
func noticeForErr(err error) *chat.Notice {
	var text string
	switch err {
	case chat.ErrTurnInFlight:
		text = "Hold on, still replying."
	case chat.ErrChoicesPending:
		text = "Pick one of the numbered choices first."
	case chat.ErrCooldown:
		text = "Give it a moment before continuing again."
	case chat.ErrAuthRequired:
		text = "You need to log in first."
	case chat.ErrTurnLimit:
		text = "This conversation has reached its end."
	case chat.ErrEmptyInput:
		return nil
	default:
		text = err.Error()
	}
	return &chat.Notice{Level: chat.NoticeInfo, Text: text}
}
