// Command gridsim runs the grid simulator as a streaming HTTP service or as
// a headless batch simulation.
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gridsim/internal/config"
	"github.com/signalsfoundry/gridsim/internal/external"
	"github.com/signalsfoundry/gridsim/internal/grid"
	"github.com/signalsfoundry/gridsim/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridsim",
		Short: "Electrical distribution grid simulator",
		Long: `gridsim models a small distribution network of sources, consumers and
storage nodes, advances it one tick at a time, and flags unexplained
generation as a possible leak.

Run "gridsim serve" for the HTTP/websocket service or "gridsim simulate"
for a headless batch run.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newSimulateCmd(),
	)
	return rootCmd
}

// loadConfig reads the --config file (if any) and environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildEngine constructs the engine from cfg. The solar lookup runs once
// here; without a configured URL it reports unavailable and the engine
// falls back to the default potential.
func buildEngine(ctx context.Context, cfg *config.Config, log logging.Logger, extra ...grid.Option) *grid.Engine {
	solar := external.NewSolarClient(cfg.External.SolarURL, cfg.ExternalOptions(log))

	opts := []grid.Option{
		grid.WithLogger(log),
		grid.WithSolarPotentials(cfg.Grid.AvailableSolarPotential, cfg.Grid.DefaultSolarPotential),
	}
	if cfg.Grid.Seed != 0 {
		opts = append(opts, grid.WithRand(rand.New(rand.NewPCG(cfg.Grid.Seed, cfg.Grid.Seed^0x9e3779b97f4a7c15))))
	}
	opts = append(opts, extra...)
	return grid.NewEngine(ctx, solar, opts...)
}
