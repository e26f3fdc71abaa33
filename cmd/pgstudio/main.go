// Command pgstudio serves the PostgreSQL admin API and talks to a running
// server from the terminal.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/pgstudio/internal/errs"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath string
	serverURL  string
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pgstudio",
		Short: "PostgreSQL admin server and terminal client",
		Long: `pgstudio exposes browsing, editing, ad-hoc queries, performance stats and
exports of a PostgreSQL database over a JSON API.

Server:
  pgstudio serve [--addr :8080]          Run the API server

Client (talks to a running server):
  pgstudio grid <table> [--schema ...]   Browse and edit a table
  pgstudio query "<SELECT ...>"          Run a read-only query
  pgstudio stats                         Show performance stats
  pgstudio export (--query|--table) ...  Export rows to the object store
  pgstudio exports                       List saved exports`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ./pgstudio.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "pgstudio server URL for client commands")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(
		newServeCmd(),
		newGridCmd(),
		newQueryCmd(),
		newStatsCmd(),
		newExportCmd(),
		newExportsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errs.Message(err))
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
