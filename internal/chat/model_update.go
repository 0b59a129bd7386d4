package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adamavenir/streamsync/internal/conversation"
	"github.com/adamavenir/streamsync/internal/paging"
	tea "github.com/charmbracelet/bubbletea"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case snapshotMsg:
		if m.view.Snapshot().Version == m.renderedVersion {
			return m, nil
		}
		m.refreshViewport(m.anchored)
		return m, nil

	case pageLoadedMsg:
		return m, m.handlePageLoaded(msg)

	case arrivalMsg:
		if m.anchored {
			return m, nil
		}
		name := msg.message.SenderName
		if name == "" {
			name = msg.message.SenderID
		}
		m.addNewMessageAuthor(name)
		if !m.notify {
			return m, nil
		}
		arrived, conv := msg.message, m.conversationID
		return m, func() tea.Msg {
			if err := SendNotification(arrived, conv); err != nil {
				m.log.Debug("notification failed", "err", err)
			}
			return nil
		}

	case readStateMsg:
		m.view.RefreshReadState()
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
		} else {
			m.status = ""
		}
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.afterScroll())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handlePageLoaded(msg pageLoadedMsg) tea.Cmd {
	if msg.kind == paging.KindOlder {
		m.loadingOlder = false
	}
	switch {
	case msg.err == nil:
		m.status = ""
	case errors.Is(msg.err, conversation.ErrSuperseded), errors.Is(msg.err, conversation.ErrExhausted):
		m.status = ""
	default:
		m.status = msg.err.Error()
	}
	// Older pages keep the viewport where it was; everything else lands at
	// the bottom.
	scrollToBottom := msg.kind == paging.KindInitial && msg.err == nil
	m.refreshViewport(scrollToBottom)
	m.awaitingPrepend = false
	if scrollToBottom {
		m.anchored = true
		m.view.SetAnchored(true)
	}
	if msg.kind == paging.KindJump && msg.err == nil {
		// The target sits in the middle of the page around it.
		m.viewport.SetYOffset((m.contentHeight() - m.viewport.Height) / 2)
		m.anchored = m.atBottom()
		m.view.SetAnchored(m.anchored)
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.afterScroll())
	case "ctrl+up":
		m.viewport.LineUp(1)
		return m, m.afterScroll()
	case "ctrl+down":
		m.viewport.LineDown(1)
		return m, m.afterScroll()
	case "ctrl+end":
		m.viewport.GotoBottom()
		return m, m.afterScroll()
	case "enter":
		return m, m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	value := m.input.Value()
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if handled, cmd := m.handleSlashCommand(value); handled {
		return cmd
	}
	m.input.Reset()
	if _, err := m.view.Send(value, nil); err != nil {
		m.status = "send failed: " + err.Error()
	}
	// Sending always brings the conversation back to the bottom.
	m.viewport.GotoBottom()
	return m.afterScroll()
}
