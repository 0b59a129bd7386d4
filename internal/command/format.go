package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adamavenir/streamsync/internal/core"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/dustin/go-humanize"
)

// formatMessage renders one message as a single line.
func formatMessage(msg types.Message, now time.Time) string {
	name := msg.SenderName
	if name == "" {
		name = msg.SenderID
	}
	id := "#" + msg.ID
	if core.IsTransientID(msg.ID) {
		id = "(sending)"
	}
	when := humanize.RelTime(msg.CreatedAt, now, "ago", "from now")

	var flags []string
	if msg.Pinned {
		flags = append(flags, "pinned")
	}
	if msg.Edited() {
		flags = append(flags, "edited")
	}
	if msg.ThreadReplyCount > 0 {
		flags = append(flags, fmt.Sprintf("%d replies", msg.ThreadReplyCount))
	}
	for _, r := range msg.Reactions {
		flags = append(flags, fmt.Sprintf("%s %d", r.Emoji, r.Count))
	}

	content := strings.Join(strings.Fields(msg.Content), " ")
	if msg.IsSystem {
		return fmt.Sprintf("%s * %s (%s)", id, content, when)
	}
	line := fmt.Sprintf("%s %s (%s): %s", id, name, when, content)
	if len(msg.Files) > 0 {
		line += fmt.Sprintf(" [%d files]", len(msg.Files))
	}
	if len(flags) > 0 {
		line += " [" + strings.Join(flags, ", ") + "]"
	}
	return line
}

func writeMessages(out io.Writer, msgs []types.Message, divider string, now time.Time) {
	for _, msg := range msgs {
		if msg.ID == divider {
			fmt.Fprintln(out, "──── new ────")
		}
		fmt.Fprintln(out, formatMessage(msg, now))
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
