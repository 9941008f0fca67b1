// File: cmd/serve.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/server"
)

// newServeCmd creates the `serve` command, which runs the HTTP coordinator
// until interrupted.
func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the coordinator and its HTTP command surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			if cmd.Flags().Changed("workers") {
				n, _ := cmd.Flags().GetInt("workers")
				if n <= 0 {
					return fmt.Errorf("--workers must be a positive integer, got %d", n)
				}
				a.cfg.SetServerWorkerConcurrency(n)
			}

			// 1. Components
			components, err := a.factory.Create(ctx, a.cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize coordinator: %w", err)
			}
			defer components.Shutdown()

			// 2. HTTP surface
			srv, err := server.New(a.cfg.Server(), components.Dispatcher, components.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			// 3. Serve until a signal arrives.
			if err := srv.Start(ctx); err != nil {
				logger.Error("Server stopped with an error.", zap.Error(err))
				return err
			}
			logger.Info("Coordinator stopped.")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address, e.g. ':8000'. (Overrides config/env)")
	cmd.Flags().IntP("workers", "j", 0, "Concurrent command handlers. (Overrides config/env)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL; empty keeps records in memory. (Overrides config/env)")
	return cmd
}
