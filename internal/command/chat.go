package command

import (
	"os/signal"
	"syscall"

	"github.com/adamavenir/streamsync/internal/chat"
	"github.com/adamavenir/streamsync/internal/readstate"
	"github.com/spf13/cobra"
)

// NewChatCmd creates the interactive chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <conversation>",
		Short: "Open a conversation in the interactive viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			// Log lines on the terminal would tear the alt screen.
			if cfg.LogSink == "stderr" || cfg.LogSink == "stdout" {
				cfg.LogSink = "discard"
			}
			if cmd.Flags().Changed("notify") {
				cfg.Notify, _ = cmd.Flags().GetBool("notify")
			}

			ctx, err := newContext(cmd, cfg, true)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			ctx.ServeMetrics(runCtx)

			sess, err := ctx.NewSession(runCtx)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer sess.Close()

			around, _ := cmd.Flags().GetString("around")
			opts := chat.Options{
				Session:         sess,
				ConversationID:  args[0],
				AroundID:        around,
				SelfID:          cfg.UserID,
				BottomThreshold: cfg.BottomThreshold,
				Notify:          cfg.Notify,
				Logger:          ctx.Logger,
			}
			if sq, ok := ctx.ReadState.(*readstate.SQLite); ok {
				opts.ReadStatePath = sq.Path()
			}
			if err := chat.Run(runCtx, opts); err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().String("around", "", "open anchored at this message id")
	cmd.Flags().Bool("notify", false, "desktop notification for messages that arrive while scrolled up")
	return cmd
}
