package chat

import (
	"github.com/adamavenir/streamsync/internal/paging"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// sentinelRows is how close to the top the viewport must be for the next
// older page to load.
const sentinelRows = 5

func (m *Model) refreshViewport(scrollToBottom bool) {
	content := m.renderMessages()
	// Keep content taller than the viewport; bubbletea cuts the first line
	// when heights match exactly.
	contentHeight := lipgloss.Height(content)
	if contentHeight > 0 && contentHeight <= m.viewport.Height {
		content = "\n" + content
		contentHeight++
	}
	// Measured against what is on screen right now, so rows appended while
	// an older page was in flight do not count as prepended.
	before := paging.Capture(m.viewport.TotalLineCount(), m.viewport.YOffset)
	m.viewport.SetContent(content)

	snap := m.view.Snapshot()
	m.renderedVersion = snap.Version
	first := ""
	if snap.Len() > 0 {
		first = snap.Messages[0].ID
	}
	prepended := m.awaitingPrepend && first != m.firstID
	m.firstID = first

	switch {
	case prepended:
		m.viewport.SetYOffset(before.Compensate(contentHeight))
		m.awaitingPrepend = false
	case scrollToBottom:
		m.viewport.GotoBottom()
		m.clearNewMessageNotification()
	default:
		maxOffset := contentHeight - m.viewport.Height
		if maxOffset < 0 {
			maxOffset = 0
		}
		if m.viewport.YOffset > maxOffset {
			m.viewport.SetYOffset(maxOffset)
		}
	}
}

func (m *Model) contentHeight() int {
	return m.viewport.TotalLineCount()
}

func (m *Model) nearTop() bool {
	return paging.NearTop(m.viewport.YOffset, sentinelRows)
}

func (m *Model) atBottom() bool {
	return paging.AtBottom(m.contentHeight(), m.viewport.Height, m.viewport.YOffset, m.bottomThreshold)
}

// afterScroll feeds the new scroll position to the read tracker and fires
// the sentinel when the top is near.
func (m *Model) afterScroll() tea.Cmd {
	if anchored := m.atBottom(); anchored != m.anchored {
		m.anchored = anchored
		m.view.SetAnchored(anchored)
		if anchored {
			m.clearNewMessageNotification()
		}
	}
	if !m.nearTop() || m.loadingOlder || !m.view.Observing() {
		return nil
	}
	m.awaitingPrepend = true
	m.loadingOlder = true
	m.status = "loading older messages…"
	return m.loadOlderCmd()
}

func (m *Model) addNewMessageAuthor(author string) {
	for _, existing := range m.newMessageAuthors {
		if existing == author {
			return
		}
	}
	m.newMessageAuthors = append(m.newMessageAuthors, author)
}

func (m *Model) clearNewMessageNotification() {
	m.newMessageAuthors = nil
}
