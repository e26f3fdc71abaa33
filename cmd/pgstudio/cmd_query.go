package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/pgstudio/internal/client"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only query",
		Long:  `Run a SELECT (or WITH) statement through the server's query gate and print the rows.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.New(serverURL).Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, res)
			}

			if len(res.Columns) > 0 {
				header := make([]string, len(res.Columns))
				for i, c := range res.Columns {
					header[i] = c.Name
				}
				rows := make([][]string, 0, len(res.Results))
				for _, row := range res.Results {
					cells := make([]string, len(res.Columns))
					for i, c := range res.Columns {
						cells[i] = cellString(row[c.Key])
					}
					rows = append(rows, cells)
				}
				fmt.Fprintln(out, renderTable(header, rows))
			}
			fmt.Fprintln(out, res.Message)
			return nil
		},
	}
}
