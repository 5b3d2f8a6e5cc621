package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"docgate/internal/journal"
	"docgate/internal/rpcapi"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseOutputFormat(format)
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative")
			}
			return ctx.withClient(func(client *rpcapi.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if outFormat != formatTable {
					return writeStructured(cmd, outFormat, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Disabled {
					fmt.Fprintln(out, "Journal is disabled (journal.enabled = false)")
					return nil
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No conversions recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Started", "Status", "Source", "Target", "Filter", "Duration", "Error"},
					historyRows(resp.Entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, or yaml")
	return cmd
}

func historyRows(entries []journal.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		target := e.Sink
		if e.TargetFormat != "" {
			target = fmt.Sprintf("%s (%s)", e.Sink, e.TargetFormat)
		}
		errText := ""
		if e.ErrorCode != "" {
			errText = titleLabel(e.ErrorCode)
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			titleLabel(string(e.Status)),
			e.Source,
			target,
			e.ExportFilter,
			e.Duration().Round(time.Millisecond).String(),
			errText,
		})
	}
	return rows
}
