package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docgate/internal/filters"
	"docgate/internal/rpcapi"
)

func newFiltersCommand(ctx *commandContext) *cobra.Command {
	var importFilters bool
	var format string

	cmd := &cobra.Command{
		Use:   "filters",
		Short: "List the engine's export (or import) filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := parseOutputFormat(format)
			if err != nil {
				return err
			}
			direction := filters.Export
			if importFilters {
				direction = filters.Import
			}
			return ctx.withClient(func(client *rpcapi.Client) error {
				resp, err := client.Filters(string(direction))
				if err != nil {
					return describeFault(err)
				}
				if outFormat != formatTable {
					return writeStructured(cmd, outFormat, resp.Filters)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s filters: %d\n", titleLabel(string(direction)), len(resp.Filters))
				if len(resp.Filters) == 0 {
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Name", "Aliases", "Document", "Type", "Description"},
					filterRows(resp.Filters),
					nil,
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&importFilters, "import", false, "List import filters instead of export filters")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, or yaml")
	return cmd
}

func filterRows(list []filters.Descriptor) [][]string {
	rows := make([][]string, 0, len(list))
	for _, d := range list {
		rows = append(rows, []string{
			d.Name,
			strings.Join(d.Aliases, ", "),
			shortService(d.DocumentService),
			d.Type,
			d.UIName,
		})
	}
	return rows
}

// shortService drops the namespace from a document service name.
func shortService(service string) string {
	if idx := strings.LastIndex(service, "."); idx >= 0 {
		return service[idx+1:]
	}
	return service
}
