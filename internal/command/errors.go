package command

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/adamavenir/streamsync/internal/api"
	"github.com/spf13/cobra"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	var apiErr *api.APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: check the token in your config or STREAMSYNC_TOKEN.")
	} else if errors.Is(err, api.ErrNotFound) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the conversation or message does not exist, or you cannot see it.")
	}

	return err
}
