package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models installed under the daemon's models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.apiClient().Models(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, resp)
			}

			stdout := cmd.OutOrStdout()
			if len(resp.Models) == 0 {
				fmt.Fprintln(stdout, "No models installed")
				return nil
			}

			rows := make([][]string, 0, len(resp.Models))
			for _, name := range resp.Models {
				rows = append(rows, []string{name})
			}
			fmt.Fprintln(stdout, renderTable([]string{"Model"}, rows, []columnAlignment{alignLeft}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
