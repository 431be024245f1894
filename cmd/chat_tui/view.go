package chat_tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/strandapp/strand/pkg/chat"
	"github.com/strandapp/strand/pkg/classify"
	"github.com/strandapp/strand/pkg/sanitize"
)

// chromeHeight is the number of rows reserved for everything that is not
// transcript: title bar, notice line, choices, input, help.
const chromeHeight = 7

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	narrationStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	systemStyle    = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("244"))
	pendingStyle   = lipgloss.NewStyle().Faint(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	choiceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("120"))
	hintStyle      = lipgloss.NewStyle().Faint(true)
)

func (m Model) View() string {
	if !m.Ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteString("\n")
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderNotice())
	b.WriteString("\n")
	b.WriteString(m.renderChoices())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("enter send · tab continue · ctrl+x stop · ctrl+c quit"))
	return b.String()
}

func (m Model) renderTitleBar() string {
	f := m.Snapshot.Flags
	title := f.Title
	if title == "" {
		title = f.RoomID
	}
	bar := titleStyle.Render(title)
	if f.MaxTurns > 0 {
		bar += hintStyle.Render(fmt.Sprintf("  turn %d/%d", f.TurnCount, f.MaxTurns))
	}
	if f.TurnInFlight {
		bar += "  " + m.Spinner.View()
	}
	return bar
}

// renderTranscript renders every message at its currently revealed length.
func (m Model) renderTranscript() string {
	var parts []string
	for _, msg := range m.Snapshot.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderMessage(msg chat.Message) string {
	content := msg.Content
	if shown, ok := m.Snapshot.Shown[msg.ID]; ok {
		runes := []rune(content)
		if shown < len(runes) {
			content = string(runes[:shown])
		}
	}
	if sanitize.HasMarkup(content) {
		content = m.Sanitizer.Sanitize(content)
	}

	width := m.Viewport.Width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width)

	switch msg.Sender {
	case chat.SenderUser:
		line := userStyle.Render("you  ") + content
		if msg.Pending {
			line += pendingStyle.Render("  (sending)")
		}
		return wrap.Render(line)

	case chat.SenderSystem:
		return wrap.Render(systemStyle.Render(content))

	default:
		body := m.renderAssistantBody(msg, content)
		if msg.ContinueHint && !msg.Pending {
			body += "\n" + hintStyle.Render("(tab to continue)")
		}
		return wrap.Render(body)
	}
}

// renderAssistantBody styles dialogue and narration differently. The split
// is cosmetic; misclassification only changes styling.
func (m Model) renderAssistantBody(msg chat.Message, content string) string {
	if msg.Narration || msg.Meta == chat.MetaIntro {
		return narrationStyle.Render(content)
	}
	if msg.Meta != chat.MetaPlain {
		return systemStyle.Render(content)
	}

	blocks := m.Classifier(content)
	rendered := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		if blk.Kind == classify.Narration {
			rendered = append(rendered, narrationStyle.Render(blk.Text))
		} else {
			rendered = append(rendered, assistantStyle.Render(blk.Text))
		}
	}
	return strings.Join(rendered, "\n")
}

func (m Model) renderNotice() string {
	if m.Notice == nil {
		return ""
	}
	style := noticeStyle
	if m.Notice.Level == chat.NoticeError {
		style = errorStyle
	}
	text := m.Notice.Text
	if m.Notice.Retryable {
		text += " (try again)"
	}
	return style.Render(text)
}

func (m Model) renderChoices() string {
	if len(m.Snapshot.Choices) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range m.Snapshot.Choices {
		if i > 0 {
			b.WriteString("   ")
		}
		b.WriteString(choiceStyle.Render(fmt.Sprintf("[%d] %s", i+1, c.Label)))
	}
	return b.String()
}

func (m Model) renderInput() string {
	f := m.Snapshot.Flags
	switch {
	case f.TurnInFlight:
		return pendingStyle.Render("waiting for reply...")
	case len(m.Snapshot.Choices) > 0:
		return pendingStyle.Render("pick a choice (1-" + fmt.Sprint(len(m.Snapshot.Choices)) + ")")
	case f.InputLocked:
		return pendingStyle.Render("this conversation has ended")
	default:
		return m.Input.View()
	}
}
