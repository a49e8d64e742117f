package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tonearm/internal/api"
	"tonearm/internal/client"
	"tonearm/internal/deps"
	"tonearm/internal/version"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and path status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.apiClient().Status(cmd.Context())
			if err != nil {
				if !errors.Is(err, client.ErrUnreachable) {
					return err
				}
				// A stopped daemon still has a useful local story: report it
				// down and check the environment from here.
				resp = localStatusSnapshot(ctx)
			}

			if jsonOut {
				return writeJSON(cmd, resp)
			}

			printStatus(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// localStatusSnapshot builds a status report without the daemon, using the
// local configuration and tool availability checks.
func localStatusSnapshot(ctx *commandContext) *api.StatusResponse {
	resp := &api.StatusResponse{
		Status:  "stopped",
		Version: version.Version,
	}
	if cfg := ctx.configValue(); cfg != nil {
		resp.ModelsDir = cfg.Paths.ModelsDir
		resp.OutputDir = cfg.Paths.OutputDir
		resp.HistoryDBPath = cfg.HistoryDBPath()
		resp.LockFilePath = cfg.LockPath()
		resp.Dependencies = api.FromDependencyStatuses(deps.Check(cfg))
	}
	return resp
}

func printStatus(out io.Writer, resp *api.StatusResponse) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if resp.Status == "running" {
		fmt.Fprintln(out, renderStatusLine("State", statusOK, "running", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("State", statusError, "not running (start it with 'tonearmd')", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Version", statusInfo, resp.Version, colorize))
	if resp.PID > 0 {
		fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", resp.PID), colorize))
	}
	if started, ok := parseAPITime(resp.StartedAt); ok {
		fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, uptimeString(started), colorize))
	}
	if resp.Status == "running" {
		fmt.Fprintln(out, renderStatusLine("Active runs", statusInfo, fmt.Sprintf("%d", resp.ActiveRuns), colorize))
		for _, run := range resp.Active {
			phase := run.Phase
			if phase == "" {
				phase = "Starting"
			}
			message := fmt.Sprintf("%s (%.0f%%)", phase, run.Progress*100)
			fmt.Fprintln(out, renderStatusLine("Run "+shortRunID(run.ID), statusInfo, message, colorize))
		}
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(resp.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Paths", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Models", statusInfo, resp.ModelsDir, colorize))
	fmt.Fprintln(out, renderStatusLine("Output", statusInfo, resp.OutputDir, colorize))
	fmt.Fprintln(out, renderStatusLine("History database", statusInfo, resp.HistoryDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, resp.LockFilePath, colorize))
}

func dependencyLines(statuses []api.DependencyStatus, colorize bool) []string {
	if len(statuses) == 0 {
		return []string{renderStatusLine("Tools", statusWarn, "no dependency information", colorize)}
	}

	lines := make([]string, 0, len(statuses)+1)
	missing := make([]string, 0)
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing tools", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func uptimeString(started time.Time) string {
	elapsed := time.Since(started)
	if elapsed < time.Minute {
		return elapsed.Round(time.Second).String()
	}
	return fmt.Sprintf("%s (since %s)", elapsed.Round(time.Minute), humanize.Time(started))
}
