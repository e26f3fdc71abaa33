package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/pgstudio/internal/config"
	"github.com/koustreak/pgstudio/internal/database/postgres"
	"github.com/koustreak/pgstudio/internal/export"
	"github.com/koustreak/pgstudio/internal/logger"
	"github.com/koustreak/pgstudio/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long: `Run the API server in the foreground. Settings come from the config file,
a .env file and POSTGRES_* / PGSTUDIO_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(&cfg.Log)

	db, err := postgres.New(ctx, cfg.Database.Pool(), postgres.WithLogger(log.Component("postgres")))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Database.String(), err)
	}
	defer db.Close()

	files, err := export.OpenStore(ctx, &cfg.Export)
	if err != nil {
		return err
	}
	if files != nil {
		defer files.Close()
	}

	log.With().
		Str("addr", cfg.Server.Addr).
		Str("database", cfg.Database.String()).
		Str("export", string(cfg.Export.Provider)).
		Str("version", version).
		Logger().Info("pgstudio starting")

	if err := server.New(cfg, db, files, log).Run(ctx); err != nil {
		return err
	}
	log.Info("pgstudio stopped")
	return nil
}
