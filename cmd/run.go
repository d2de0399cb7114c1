package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/mixnet-sim/sim/config"
	"github.com/inference-sim/mixnet-sim/sim/network"
	"github.com/inference-sim/mixnet-sim/sim/stats"
)

// overrides are command-line values that replace configuration file values.
// Nil pointers and empty strings leave the file value in place.
type overrides struct {
	seed     *int64
	horizon  *float64
	traceDir string
}

// plotOptions select the series rendered by --plot.
type plotOptions struct {
	path   string
	metric string
	entity string
	window string
}

var (
	configPath string  // Configuration file (.yaml, .toml, .properties)
	runSeed    int64   // Seed override
	runHorizon float64 // Horizon override in seconds
	storePath  string  // Result archive
	traceDir   string  // Trace folder override
	plot       plotOptions
)

// runCmd executes one replication
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one replication of a mix network",
	RunE: func(cmd *cobra.Command, args []string) error {
		ov := overrides{traceDir: traceDir}
		if cmd.Flags().Changed("seed") {
			ov.seed = &runSeed
		}
		if cmd.Flags().Changed("horizon") {
			ov.horizon = &runHorizon
		}
		cfg, err := resolveConfig(configPath, ov)
		if err != nil {
			return err
		}
		return runOnce(cmd.Context(), *cfg, storePath, plot, cmd.OutOrStdout())
	},
}

// resolveConfig loads path (or the default configuration when empty) and
// applies ov, then validates the result.
func resolveConfig(path string, ov overrides) (*config.Config, error) {
	var cfg *config.Config
	if path == "" {
		d := config.Default()
		cfg = &d
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if ov.seed != nil {
		cfg.Seed = *ov.seed
	}
	if ov.horizon != nil {
		cfg.HorizonSeconds = *ov.horizon
	}
	if ov.traceDir != "" {
		cfg.Traffic.Dir = ov.traceDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runOnce(ctx context.Context, cfg config.Config, store string, po plotOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logrus.Infof("Starting replication: seed=%d horizon=%gs mode=%s mixes=%d strategy=%s",
		cfg.Seed, cfg.HorizonSeconds, cfg.Routing.Mode, cfg.Mixes.Count, cfg.Mixes.Strategy)
	res := network.Run(ctx, cfg)
	results := []network.RunResult{res}
	if err := finishBatch(results, store, po, w); err != nil {
		return err
	}
	return res.Err
}

// finishBatch archives, plots and prints the results of one command.
func finishBatch(results []network.RunResult, store string, po plotOptions, w io.Writer) error {
	batch, keys, err := archive(store, results)
	if err != nil {
		return err
	}
	if po.path != "" {
		if err := plotResults(results, po); err != nil {
			return err
		}
	}
	return printJSON(w, "Simulation Results", newBatchReport(batch, results, keys))
}

// archive stores every finished run under a fresh batch id. It returns the
// batch id and run id -> key, or empty values when path is empty.
func archive(path string, results []network.RunResult) (string, map[string]string, error) {
	if path == "" {
		return "", nil, nil
	}
	store, err := stats.OpenStore(path)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = store.Close() }()
	batch := stats.NewBatchID()
	keys := make(map[string]string)
	for _, r := range results {
		if r.Results == nil {
			continue
		}
		key, err := store.Put(batch, r.Results)
		if err != nil {
			return "", nil, err
		}
		keys[r.RunID] = key
	}
	logrus.Infof("Stored %d run(s) in %s as batch %s", len(keys), path, batch)
	return batch, keys, nil
}

func plotResults(results []network.RunResult, po plotOptions) error {
	metric, err := stats.ParseMetric(po.metric)
	if err != nil {
		return err
	}
	entity, err := stats.ParseEntity(po.entity)
	if err != nil {
		return err
	}
	pp, err := stats.NewPostProcessor(po.window)
	if err != nil {
		return err
	}
	var sets []*stats.ResultSet
	for _, r := range results {
		if r.Results != nil {
			sets = append(sets, r.Results)
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("no results to plot")
	}
	if err := stats.PlotSeries(sets, metric, entity, pp, po.path); err != nil {
		return err
	}
	logrus.Infof("Plotted %s of %s to %s", metric, entity, po.path)
	return nil
}

func addPlotFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&plot.path, "plot", "", "Write a plot of one series to this file (.png, .svg, .pdf)")
	cmd.Flags().StringVar(&plot.metric, "metric", string(stats.EndToEndLatency), "Metric to plot")
	cmd.Flags().StringVar(&plot.entity, "entity", "global", "Entity to plot (global, mix/<id>, client/<id>)")
	cmd.Flags().StringVar(&plot.window, "window", "per-second", "Post-processor applied before plotting")
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Configuration file (.yaml, .toml, .properties); defaults to a 3-mix cascade")
	runCmd.Flags().Int64Var(&runSeed, "seed", 42, "Seed overriding the configuration")
	runCmd.Flags().Float64Var(&runHorizon, "horizon", 10, "Simulation horizon in virtual seconds, overriding the configuration")
	runCmd.Flags().StringVar(&storePath, "store", "", "Archive results in this bbolt database")
	runCmd.Flags().StringVar(&traceDir, "trace-dir", "", "Replay traffic from the captures in this folder")
	addPlotFlags(runCmd)

	rootCmd.AddCommand(runCmd)
}
