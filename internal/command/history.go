package command

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/adamavenir/streamsync/internal/conversation"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/spf13/cobra"
)

type historyPayload struct {
	ConversationID string          `json:"conversation_id"`
	Pages          int             `json:"pages"`
	Exhausted      bool            `json:"exhausted"`
	Messages       []types.Message `json:"messages"`
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Print a conversation, walking back page by page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd, true)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			pages, _ := cmd.Flags().GetInt("pages")
			around, _ := cmd.Flags().GetString("around")
			if pages <= 0 {
				return writeCommandError(cmd, fmt.Errorf("--pages must be positive"))
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Reading history is not reading the conversation, so the
			// persisted watermark is left alone.
			opts := ctx.Options(nil)
			opts.ReadState = readstate.NewMemory()
			view := conversation.NewView(opts)
			defer view.Close()

			payload, err := walkHistory(runCtx, view, args[0], around, pages)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), payload)
			}
			out := cmd.OutOrStdout()
			if len(payload.Messages) == 0 {
				fmt.Fprintf(out, "No messages in %s\n", payload.ConversationID)
				return nil
			}
			if payload.Exhausted {
				fmt.Fprintln(out, "· beginning of conversation ·")
			}
			writeMessages(out, payload.Messages, "", time.Now())
			return nil
		},
	}

	cmd.Flags().Int("pages", 1, "number of pages to load")
	cmd.Flags().String("around", "", "start from the page around this message id")
	return cmd
}

func walkHistory(ctx context.Context, view *conversation.View, conversationID, around string, pages int) (historyPayload, error) {
	var err error
	if around != "" {
		err = view.OpenAround(ctx, conversationID, around)
	} else {
		err = view.Open(ctx, conversationID)
	}
	if err != nil {
		return historyPayload{}, err
	}

	loaded := 1
	exhausted := false
	for ; loaded < pages; loaded++ {
		err := view.LoadOlder(ctx)
		if errors.Is(err, conversation.ErrExhausted) {
			exhausted = true
			break
		}
		if err != nil {
			return historyPayload{}, err
		}
	}
	if !view.Observing() {
		exhausted = true
	}

	return historyPayload{
		ConversationID: conversationID,
		Pages:          loaded,
		Exhausted:      exhausted,
		Messages:       view.Snapshot().Messages,
	}, nil
}
