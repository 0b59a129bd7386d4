package chat

import (
	"strings"

	"github.com/adamavenir/streamsync/internal/types"
	"github.com/gen2brain/beeep"
)

// SendNotification raises an OS notification for a message that arrived
// while the conversation was scrolled away from the bottom.
func SendNotification(msg types.Message, conversationID string) error {
	title := msg.SenderName
	if title == "" {
		title = msg.SenderID
	}
	if conversationID != "" {
		title = conversationID + " · " + title
	}
	body := truncateNotification(msg.Content, 100)
	if body == "" && len(msg.Files) > 0 {
		body = "sent an attachment"
	}
	return beeep.Notify(title, body, "")
}

func truncateNotification(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
