package command

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewReadsCmd creates the reads command.
func NewReadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reads [conversation]",
		Short: "Show or adjust persisted read positions",
		Long: `Show or adjust persisted read positions.

Without a conversation, lists every conversation the read-state backend holds.
With one, prints its watermark and unread count, or changes them:

  --set <id>   advance the watermark (never moves backwards)
  --clear      zero the unread counter
  --reset      forget the conversation entirely`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd, false)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			setID, _ := cmd.Flags().GetString("set")
			clearUnread, _ := cmd.Flags().GetBool("clear")
			reset, _ := cmd.Flags().GetBool("reset")

			if len(args) == 0 {
				if setID != "" || clearUnread || reset {
					return writeCommandError(cmd, fmt.Errorf("--set, --clear and --reset need a conversation"))
				}
				return listReads(cmd, ctx)
			}
			conv := args[0]
			st := ctx.ReadState

			switch {
			case reset:
				deleter, ok := st.(readstate.Deleter)
				if !ok {
					return writeCommandError(cmd, fmt.Errorf("backend %q cannot reset", ctx.Config.ReadState.Backend))
				}
				if err := deleter.Delete(conv); err != nil {
					return writeCommandError(cmd, err)
				}
			case setID != "":
				id, err := strconv.ParseInt(setID, 10, 64)
				if err != nil || id <= 0 {
					return writeCommandError(cmd, fmt.Errorf("--set needs a positive message id, got %q", setID))
				}
				moved, err := st.SetLastRead(conv, id)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if !moved && !ctx.JSONMode {
					fmt.Fprintf(cmd.ErrOrStderr(), "watermark already at or past #%d\n", id)
				}
			}
			if clearUnread {
				if err := st.ClearUnreadCount(conv); err != nil {
					return writeCommandError(cmd, err)
				}
			}

			state, err := readOne(st, conv)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), state)
			}
			writeReadState(cmd.OutOrStdout(), state)
			return nil
		},
	}

	cmd.Flags().String("set", "", "advance the read watermark to this message id")
	cmd.Flags().Bool("clear", false, "zero the unread counter")
	cmd.Flags().Bool("reset", false, "forget all read state for the conversation")
	return cmd
}

func readOne(st readstate.Store, conv string) (types.ReadState, error) {
	state := types.ReadState{ConversationID: conv}
	id, ok, err := st.LastRead(conv)
	if err != nil {
		return state, err
	}
	state.LastReadID, state.HasLastRead = id, ok
	if state.UnreadCount, err = st.UnreadCount(conv); err != nil {
		return state, err
	}
	if lister, ok := st.(readstate.Lister); ok {
		all, err := lister.List()
		if err != nil {
			return state, err
		}
		for _, s := range all {
			if s.ConversationID == conv {
				state.UpdatedAt = s.UpdatedAt
			}
		}
	}
	return state, nil
}

func listReads(cmd *cobra.Command, ctx *CommandContext) error {
	lister, ok := ctx.ReadState.(readstate.Lister)
	if !ok {
		return writeCommandError(cmd, fmt.Errorf("backend %q cannot list read state", ctx.Config.ReadState.Backend))
	}
	states, err := lister.List()
	if err != nil {
		return writeCommandError(cmd, err)
	}
	if ctx.JSONMode {
		if states == nil {
			states = []types.ReadState{}
		}
		return writeJSON(cmd.OutOrStdout(), states)
	}
	out := cmd.OutOrStdout()
	if len(states) == 0 {
		fmt.Fprintln(out, "No read state recorded")
		return nil
	}
	for _, s := range states {
		writeReadState(out, s)
	}
	return nil
}

func writeReadState(out io.Writer, s types.ReadState) {
	mark := "never read"
	if s.HasLastRead {
		mark = fmt.Sprintf("read through #%d", s.LastReadID)
	}
	line := fmt.Sprintf("%s: %s, %d unread", s.ConversationID, mark, s.UnreadCount)
	if s.UpdatedAt > 0 {
		line += " (" + humanize.Time(time.UnixMilli(s.UpdatedAt)) + ")"
	}
	fmt.Fprintln(out, line)
}
