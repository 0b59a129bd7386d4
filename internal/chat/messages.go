package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/paging"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const dividerLabel = " new "

func (m *Model) renderMessages() string {
	snap := m.view.Snapshot()
	if snap.Len() == 0 {
		return lipgloss.NewStyle().Foreground(metaColor).Render("no messages yet")
	}
	divider := m.view.DividerID()

	var b strings.Builder
	if m.view.PagingState() == paging.Exhausted {
		b.WriteString(lipgloss.NewStyle().Foreground(metaColor).Render("· beginning of conversation ·"))
		b.WriteString("\n\n")
	}
	for i, msg := range snap.Messages {
		if msg.ID == divider {
			b.WriteString(m.renderDivider())
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
		if i < len(snap.Messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func (m *Model) renderDivider() string {
	width := m.viewport.Width
	if width <= len(dividerLabel)+2 {
		width = len(dividerLabel) + 12
	}
	side := (width - len(dividerLabel)) / 2
	line := strings.Repeat("─", side) + dividerLabel + strings.Repeat("─", width-side-len(dividerLabel))
	return lipgloss.NewStyle().Foreground(dividerColor).Render(line)
}

func (m *Model) renderMessage(msg types.Message) string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	bodyStyle := lipgloss.NewStyle().Width(width - 2).PaddingLeft(2)
	meta := lipgloss.NewStyle().Foreground(metaColor)

	if msg.IsSystem {
		line := fmt.Sprintf("* %s · %s", msg.Content, humanize.RelTime(msg.CreatedAt, m.now(), "ago", "from now"))
		return lipgloss.NewStyle().Foreground(systemColor).Italic(true).Width(width).Render(line)
	}

	pending := core.IsTransientID(msg.ID)
	name := msg.SenderName
	if name == "" {
		name = msg.SenderID
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(colorForSender(msg.SenderID, m.colorMap)).Render(name)
	parts := []string{header, meta.Render(humanize.RelTime(msg.CreatedAt, m.now(), "ago", "from now"))}
	if pending {
		parts = append(parts, lipgloss.NewStyle().Foreground(pendingColor).Italic(true).Render("sending…"))
	} else {
		parts = append(parts, meta.Render("#"+msg.ID))
	}
	if msg.Edited() {
		parts = append(parts, meta.Render("(edited)"))
	}
	if msg.Pinned {
		parts = append(parts, lipgloss.NewStyle().Foreground(pinColor).Render("pinned"))
	}

	lines := []string{strings.Join(parts, meta.Render(" · "))}
	if msg.IsForwarded && msg.ForwardedFrom != nil {
		from := msg.ForwardedFrom.SenderName
		if from == "" {
			from = msg.ForwardedFrom.SenderID
		}
		lines = append(lines, bodyStyle.Foreground(metaColor).Render("↪ forwarded from "+from))
	}
	if msg.Content != "" {
		body := bodyStyle
		if pending {
			body = body.Foreground(pendingColor)
		}
		lines = append(lines, body.Render(msg.Content))
	}
	for _, f := range msg.Files {
		label := f.Name
		if label == "" {
			label = f.URL
		}
		if f.Size > 0 {
			label += " (" + humanize.Bytes(uint64(f.Size)) + ")"
		}
		lines = append(lines, bodyStyle.Foreground(metaColor).Render("📎 "+label))
	}
	if r := formatReactions(msg.Reactions, m.selfID); r != "" {
		lines = append(lines, bodyStyle.Render(r))
	}
	if msg.ThreadReplyCount > 0 {
		noun := "replies"
		if msg.ThreadReplyCount == 1 {
			noun = "reply"
		}
		lines = append(lines, bodyStyle.Foreground(noticeColor).Render(fmt.Sprintf("↳ %d %s", msg.ThreadReplyCount, noun)))
	}
	return strings.Join(lines, "\n")
}

// formatReactions renders "👍 2  🎉 1", marking the ones selfID is part of.
func formatReactions(reactions []types.Reaction, selfID string) string {
	if len(reactions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(reactions))
	for _, r := range reactions {
		if r.Count <= 0 {
			continue
		}
		part := fmt.Sprintf("%s %d", r.Emoji, r.Count)
		if selfID != "" && r.HasUser(selfID) {
			part = "[" + part + "]"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "  ")
}
