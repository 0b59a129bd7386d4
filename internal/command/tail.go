package command

import (
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adamavenir/streamsync/internal/reconcile"
	"github.com/adamavenir/streamsync/internal/router"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
)

type tailEvent struct {
	Kind           types.EventKind  `json:"kind"`
	ConversationID string           `json:"conversation_id,omitempty"`
	MessageID      string           `json:"message_id,omitempty"`
	Malformed      bool             `json:"malformed,omitempty"`
	Applied        int              `json:"applied"`
	Outcomes       []string         `json:"outcomes,omitempty"`
	Message        *types.Message   `json:"message,omitempty"`
	Reactions      []types.Reaction `json:"reactions,omitempty"`
}

// NewTailCmd creates the tail command.
func NewTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail <conversation>",
		Short: "Join a conversation and print events as they are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, _ := cmd.Flags().GetString("events")
			matcher, err := glob.Compile(pattern)
			if err != nil {
				return writeCommandError(cmd, fmt.Errorf("invalid --events pattern %q: %w", pattern, err))
			}

			ctx, err := GetContext(cmd, true)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx.ServeMetrics(runCtx)

			sess, err := ctx.NewSession(runCtx)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer sess.Close()

			printer := &eventPrinter{out: cmd.OutOrStdout(), json: ctx.JSONMode, match: matcher}
			sess.Router().Observe(printer.print)

			if err := sess.Open(runCtx, args[0]); err != nil {
				return writeCommandError(cmd, err)
			}
			ch := sess.Channel()
			if !ctx.JSONMode {
				printer.mu.Lock()
				writeMessages(printer.out, ch.Snapshot().Messages, ch.DividerID(), time.Now())
				fmt.Fprintln(printer.out, "── live ──")
				printer.mu.Unlock()
			}
			// Printing to a terminal counts as being at the bottom.
			ch.SetAnchored(true)

			<-runCtx.Done()
			return nil
		},
	}

	cmd.Flags().String("events", "*", "only print events whose kind matches this glob, e.g. 'message-*'")
	return cmd
}

type eventPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	json  bool
	match glob.Glob
}

func (p *eventPrinter) print(out router.Outcome) {
	if !p.match.Match(string(out.Event.Kind)) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		ev := tailEvent{
			Kind:           out.Event.Kind,
			ConversationID: out.Event.ConversationID,
			MessageID:      out.Event.MessageID,
			Malformed:      out.Malformed,
			Applied:        out.Applied,
			Message:        out.Event.Message,
			Reactions:      out.Event.Reactions,
		}
		for _, res := range out.Results {
			ev.Outcomes = append(ev.Outcomes, res.Outcome.String())
		}
		_ = writeJSON(p.out, ev)
		return
	}
	fmt.Fprintln(p.out, describeOutcome(out, time.Now()))
}

func describeOutcome(out router.Outcome, now time.Time) string {
	ev := out.Event
	if out.Malformed {
		return fmt.Sprintf("! %s (malformed, dropped)", ev.Kind)
	}
	switch ev.Kind {
	case types.EventMessageCreated, types.EventThreadReplyAdded:
		if ev.Message == nil {
			return fmt.Sprintf("%s parent=#%s", ev.Kind, ev.ParentID)
		}
		outcome := "ignored"
		if len(out.Results) > 0 {
			outcome = out.Results[0].Outcome.String()
			if out.Results[0].Outcome == reconcile.Replaced {
				outcome += " " + out.Results[0].TransientID
			}
		}
		prefix := "+"
		if ev.Kind == types.EventThreadReplyAdded {
			prefix = "↳ #" + ev.ParentID
		}
		return fmt.Sprintf("%s %s [%s]", prefix, formatMessage(*ev.Message, now), outcome)
	case types.EventMessageEdited:
		return fmt.Sprintf("~ #%s edited: %s", ev.MessageID, ev.Content)
	case types.EventReactionUpdated:
		return fmt.Sprintf("~ #%s reactions: %s", ev.MessageID, formatReactionSet(ev.Reactions))
	default:
		return fmt.Sprintf("~ #%s %s (applied to %d)", ev.MessageID, ev.Kind, out.Applied)
	}
}

func formatReactionSet(reactions []types.Reaction) string {
	if len(reactions) == 0 {
		return "none"
	}
	s := ""
	for i, r := range reactions {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s%d", r.Emoji, r.Count)
	}
	return s
}
