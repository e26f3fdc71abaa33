package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/koustreak/pgstudio/internal/client"
	"github.com/koustreak/pgstudio/internal/stats"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show performance stats",
		Long: `Show the database performance snapshot:
  - Cache hit ratio, active connections and database size
  - Most active and largest tables
  - Tables that mostly use sequential scans
  - Unused indexes and queries running longer than a second`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverURL)
			out := cmd.OutOrStdout()

			h, err := c.Health(cmd.Context())
			if err != nil && !h.Success && h.Message == "" {
				return err
			}
			r, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, map[string]any{"health": h, "stats": r})
			}
			printStats(out, h, r)
			return nil
		},
	}
}

func printStats(w io.Writer, h stats.Health, r stats.Report) {
	if h.Success {
		fmt.Fprintf(w, "%s (ping %s)\n", h.Version, h.Latency)
	} else {
		fmt.Fprintf(w, "unhealthy: %s\n", h.Message)
	}
	fmt.Fprintf(w, "Cache hit ratio:     %d%%\n", r.CacheHitRatio)
	fmt.Fprintf(w, "Active connections:  %d\n", r.ActiveConnections)
	fmt.Fprintf(w, "Database size:       %s\n", r.DatabaseSize)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	section(tw, "Most active tables", "TABLE\tSEQ\tIDX\tTOTAL")
	for _, t := range r.MostActiveTables {
		fmt.Fprintf(tw, "%s.%s\t%d\t%d\t%d\n", t.Schema, t.Table, t.SeqScans, t.IndexScans, t.TotalScans)
	}
	section(tw, "Largest tables", "TABLE\tSIZE")
	for _, t := range r.LargestTables {
		fmt.Fprintf(tw, "%s.%s\t%s\n", t.Schema, t.Table, t.Size)
	}
	section(tw, "Sequential scan heavy", "TABLE\tSEQ RATIO")
	for _, t := range r.SeqScanTables {
		fmt.Fprintf(tw, "%s.%s\t%.1f%%\n", t.Schema, t.Table, t.SeqRatio)
	}
	section(tw, "Unused indexes", "INDEX\tTABLE\tSIZE")
	for _, ix := range r.UnusedIndexes {
		fmt.Fprintf(tw, "%s\t%s.%s\t%s\n", ix.Index, ix.Schema, ix.Table, ix.Size)
	}
	section(tw, "Slow queries", "PID\tDURATION\tSTATE\tQUERY")
	for _, q := range r.SlowQueries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", q.PID, q.Duration, q.State, q.Query)
	}
	_ = tw.Flush()

	for _, e := range r.Errors {
		fmt.Fprintf(w, "! %s\n", e)
	}
}

func section(w io.Writer, title, header string) {
	fmt.Fprintf(w, "\n%s\n%s\n", title, header)
}
