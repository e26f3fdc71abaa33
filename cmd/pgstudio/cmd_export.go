package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/koustreak/pgstudio/internal/client"
	"github.com/koustreak/pgstudio/internal/export"
	"github.com/koustreak/pgstudio/internal/tables"
)

func newExportCmd() *cobra.Command {
	var (
		req    export.Request
		format string
		schema string
		table  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rows to the object store",
		Long: `Render the result of a query, or the whole of a table, as CSV or JSON and
upload it to the server's export store. Prints the download URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Format = export.Format(format)
			if table != "" {
				req.Table = &tables.PageRequest{Schema: schema, Table: table}
			}
			res, err := client.New(serverURL).Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "%s (%d rows, %s)\n", res.Key, res.RowCount, res.SizeLabel)
			url := res.URL
			if strings.HasPrefix(url, "/") {
				url = strings.TrimRight(serverURL, "/") + url
			}
			fmt.Fprintln(out, url)
			if res.ExpiresAt != nil {
				fmt.Fprintf(out, "link expires %s\n", res.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Query, "query", "", "SELECT statement to export")
	cmd.Flags().StringVar(&table, "table", "", "table to export")
	cmd.Flags().StringVar(&schema, "schema", tables.DefaultSchema, "schema of --table")
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv or json")
	cmd.Flags().StringVar(&req.Name, "name", "", "file name stem")
	cmd.MarkFlagsMutuallyExclusive("query", "table")
	cmd.MarkFlagsOneRequired("query", "table")
	return cmd
}

func newExportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exports",
		Short: "List files in the export store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := client.New(serverURL).Exports(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, files)
			}
			if len(files) == 0 {
				fmt.Fprintln(out, "no exports")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{f.Key, humanize.Bytes(uint64(f.Size)), humanize.Time(f.LastModified)})
			}
			_, err = fmt.Fprintln(out, renderTable([]string{"KEY", "SIZE", "MODIFIED"}, rows))
			return err
		},
	}
}
