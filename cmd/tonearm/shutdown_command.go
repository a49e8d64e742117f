package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tonearm/internal/client"
)

func newShutdownCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the tonearm daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			resp, err := ctx.apiClient().Shutdown(cmd.Context())
			if errors.Is(err, client.ErrUnreachable) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if resp.Status == "shutting_down" {
				fmt.Fprintln(stdout, "Shutdown requested, daemon is stopping")
			} else {
				fmt.Fprintf(stdout, "Daemon answered with status %q\n", resp.Status)
			}
			return nil
		},
	}
}
