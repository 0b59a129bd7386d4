package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	lines := []string{m.viewport.View()}
	if notice := m.renderNewMessageNotice(); notice != "" {
		lines = append(lines, notice)
	} else {
		lines = append(lines, "")
	}
	lines = append(lines, m.input.View(), m.statusLine())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderNewMessageNotice() string {
	if len(m.newMessageAuthors) == 0 {
		return ""
	}
	text := "new messages from " + strings.Join(m.newMessageAuthors, ", ") + " · ctrl+end to jump"
	return lipgloss.NewStyle().Foreground(noticeColor).Render(text)
}

func (m *Model) statusLine() string {
	if m.status != "" {
		style := lipgloss.NewStyle().Foreground(statusColor)
		if strings.Contains(m.status, "failed") {
			style = style.Foreground(errorColor)
		}
		return style.Render(m.status)
	}
	parts := []string{m.conversationID}
	if unread := m.view.Unread(); unread > 0 {
		parts = append(parts, fmt.Sprintf("%d unread", unread))
	}
	if m.loadingOlder {
		parts = append(parts, "loading older…")
	}
	return lipgloss.NewStyle().Foreground(statusColor).Render(strings.Join(parts, " · "))
}
