package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/server"
)

func newServeCmd(e *env) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, e, !skipMigrate)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					e.log.Error("shutdown", zap.Error(err))
				}
			}()

			return server.Run(ctx, server.Config{
				Port:           e.cfg.Server.Port,
				ReadTimeout:    e.cfg.Server.ReadTimeout,
				WriteTimeout:   e.cfg.Server.WriteTimeout,
				RequestTimeout: e.cfg.Server.RequestTimeout,
				Ledger:         a.svc,
				Activity:       a.activity,
				Stream:         a.hub,
				Metrics:        a.metrics,
				Health:         a.db.Ping,
				Logger:         e.log.Named("http"),
			})
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not create or upgrade the schema on startup")
	bindFlags(e.v, cmd.Flags(), map[string]string{"server.port": "port"})
	return cmd
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), e, true)
			if err != nil {
				return err
			}
			return a.Close()
		},
	}
}
