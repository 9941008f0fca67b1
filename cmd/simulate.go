// File: cmd/simulate.go
package cmd

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/engine"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/observability"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/policy"
	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/internal/simulator"
)

// newSimulateCmd creates the `simulate` command, which plays the three edges
// in-process and prints the run summary as JSON.
func newSimulateCmd(a *app) *cobra.Command {
	var opts simulator.Options

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Runs one experiment against simulated edge controllers",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ManualOrders > 0 && opts.Experiment != engine.ExperimentManual {
				return errors.New("--orders only applies to the manual experiment")
			}
			// Warehouse overrides apply to this run only.
			if cmd.Flags().Changed("order-total") {
				n, _ := cmd.Flags().GetInt("order-total")
				if n < 0 {
					return fmt.Errorf("--order-total must not be negative, got %d", n)
				}
				a.cfg.SetWarehouseOrderTotal(n)
			}
			if cmd.Flags().Changed("seed") {
				seed, _ := cmd.Flags().GetInt64("seed")
				a.cfg.SetWarehouseSeed(seed)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			components, err := a.factory.Create(ctx, a.cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize coordinator: %w", err)
			}
			defer components.Shutdown()

			sim, err := simulator.New(components.Dispatcher, logger)
			if err != nil {
				return err
			}
			report, runErr := sim.Run(ctx, opts)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return runErr
		},
	}

	cmd.Flags().StringVarP(&opts.Experiment, "experiment", "e", engine.ExperimentGenerated, "Experiment type: manual, generated or anomaly.")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", policy.ModeHeuristic, "Decision mode: policy, heuristic or random.")
	cmd.Flags().IntVar(&opts.ManualOrders, "orders", 0, "Random orders placed up front in a manual experiment.")
	cmd.Flags().IntVar(&opts.MaxTicks, "max-ticks", 10000, "Give up after this many ticks; 0 means no limit.")
	cmd.Flags().Int64Var(&opts.Seed, "order-seed", 1, "Seed for the manual order stream.")
	cmd.Flags().Int("order-total", 0, "Orders generated per run. (Overrides config/env)")
	cmd.Flags().Int64("seed", 0, "Warehouse seed. (Overrides config/env)")
	return cmd
}
