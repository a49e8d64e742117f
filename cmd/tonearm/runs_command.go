package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"tonearm/internal/api"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent analysis runs or inspect one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				resp, err := ctx.apiClient().Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				printRunDetail(cmd.OutOrStdout(), resp.Run)
				return nil
			}

			resp, err := ctx.apiClient().Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}

			stdout := cmd.OutOrStdout()
			if len(resp.Runs) == 0 {
				fmt.Fprintln(stdout, "No runs recorded")
				return nil
			}

			rows := make([][]string, 0, len(resp.Runs))
			for _, run := range resp.Runs {
				rows = append(rows, []string{
					shortRunID(run.ID),
					run.Status,
					filepath.Base(run.AudioPath),
					relativeTime(run.CreatedAt),
				})
			}
			table := renderTable(
				[]string{"ID", "Status", "Track", "Started"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to list (daemon default when omitted)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// shortRunID trims a UUID to its first group for table display.
func shortRunID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func printRunDetail(out io.Writer, run api.Run) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Run "+shortRunID(run.ID), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("ID", statusInfo, run.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), run.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Audio", statusInfo, run.AudioPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Output", statusInfo, run.OutputDir, colorize))
	fmt.Fprintln(out, renderStatusLine("GPU", statusInfo, yesNo(run.GPU), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, relativeTime(run.CreatedAt), colorize))
	if run.CompletedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, relativeTime(run.CompletedAt), colorize))
	}
	if run.ResultPath != "" {
		fmt.Fprintln(out, renderStatusLine("Result", statusInfo, run.ResultPath, colorize))
	}
	if run.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, run.Error, colorize))
	}

	if disabled := disabledFeatures(run.Features); len(disabled) > 0 {
		fmt.Fprintln(out, renderStatusLine("Disabled stages", statusInfo, strings.Join(disabled, ", "), colorize))
	}
	if len(run.StageFailures) > 0 {
		names := make([]string, 0, len(run.StageFailures))
		for name := range run.StageFailures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintln(out, renderStatusLine(stageDisplayName(name), statusError, run.StageFailures[name], colorize))
		}
	}
}

func runStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed", "cancelled":
		return statusError
	default:
		return statusInfo
	}
}

func disabledFeatures(features map[string]bool) []string {
	disabled := make([]string, 0, len(features))
	for name, enabled := range features {
		if !enabled {
			disabled = append(disabled, name)
		}
	}
	sort.Strings(disabled)
	return disabled
}
