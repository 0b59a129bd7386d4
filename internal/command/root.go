package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "streamsync"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "streamsync - live conversation stream client",
		Long:          "streamsync keeps a local, ordered view of a conversation in sync with a chat server over HTTP and websockets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "config file (default ~/.config/streamsync/config.yaml)")
	cmd.PersistentFlags().String("server", "", "chat server base URL")
	cmd.PersistentFlags().String("as", "", "user id to act as")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewChatCmd(),
		NewTailCmd(),
		NewHistoryCmd(),
		NewReadsCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
