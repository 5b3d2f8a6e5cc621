package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docgate/internal/config"
	"docgate/internal/preflight"
	"docgate/internal/rpcapi"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway and engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, dialErr := ctx.dialClient()
			if dialErr != nil {
				if jsonOutput {
					return dialErr
				}
				cfg, _ := ctx.ensureConfig()
				for _, line := range renderOffline(cmd, ctx.rpcAddress(), cfg, colorize) {
					fmt.Fprintln(out, line)
				}
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeStructured(cmd, formatJSON, status)
			}
			for _, line := range renderStatus(ctx.rpcAddress(), status, colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(addr string, status *rpcapi.StatusResponse, colorize bool) []string {
	lines := renderSectionHeader("Gateway", colorize)
	lines = append(lines,
		renderStatusLine("Gateway", statusOK, fmt.Sprintf("%s (up %s)", addr, time.Duration(status.UptimeSeconds)*time.Second), colorize),
	)

	if status.EngineRunning {
		lines = append(lines, renderStatusLine("Engine", statusOK, fmt.Sprintf("pid %d", status.EnginePID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Engine", statusError, "not running", colorize))
	}
	if status.Connected {
		lines = append(lines, renderStatusLine("Bridge", statusOK, status.Connection, colorize))
	} else {
		lines = append(lines, renderStatusLine("Bridge", statusWarn, "disconnected; reconnects on next request", colorize))
	}

	queue := fmt.Sprintf("busy %s, waiting %d", yesNo(status.Busy), status.QueueDepth)
	lines = append(lines, renderStatusLine("Queue", statusInfo, queue, colorize))

	served := fmt.Sprintf("%d served, %d failed", status.Served, status.Failed)
	kind := statusOK
	if status.Failed > 0 {
		kind = statusWarn
	}
	lines = append(lines, renderStatusLine("Requests", kind, served, colorize))
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Journal", colorize)...)
	switch {
	case status.JournalDisabled:
		lines = append(lines, renderStatusLine("Journal", statusInfo, "disabled", colorize))
	case status.Journal != nil:
		summary := fmt.Sprintf("%d total, %d succeeded, %d failed", status.Journal.Total, status.Journal.Succeeded, status.Journal.Failed)
		lines = append(lines, renderStatusLine("Journal", statusOK, summary, colorize))
		if status.Journal.LastFailure != nil {
			lines = append(lines, renderStatusLine("Last failure", statusWarn, status.Journal.LastFailure.Local().Format(time.RFC3339), colorize))
		}
	default:
		lines = append(lines, renderStatusLine("Journal", statusWarn, "unavailable", colorize))
	}
	return lines
}

func renderOffline(cmd *cobra.Command, addr string, cfg *config.Config, colorize bool) []string {
	lines := renderSectionHeader("Gateway", colorize)
	probe := preflight.ProbeGateway(cmd.Context(), addr)
	lines = append(lines, renderStatusLine("Gateway", statusError, strings.TrimSpace(probe.Detail), colorize))
	if cfg == nil {
		return lines
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Path, colorize))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, dep.Detail, colorize))
	}
	lines = append(lines, "", "Start the gateway with `docgate serve`.")
	return lines
}
