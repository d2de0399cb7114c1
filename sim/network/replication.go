package network

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/mixnet-sim/sim/config"
)

// SeedSweep returns runs copies of base with seeds base.Seed, base.Seed+1, ...
func SeedSweep(base config.Config, runs int) []config.Config {
	cfgs := make([]config.Config, runs)
	for i := range cfgs {
		cfgs[i] = base.WithSeed(base.Seed + int64(i))
	}
	return cfgs
}

// RunReplications runs one independent network per configuration, at most
// parallel at a time (GOMAXPROCS when parallel <= 0). Results are returned in
// input order. A failing replication, including one that panics, is reported in
// its RunResult and does not stop the others. listeners are called once per
// finished replication, serialized.
func RunReplications(ctx context.Context, cfgs []config.Config, parallel int, listeners ...func(RunResult)) []RunResult {
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	results := make([]RunResult, len(cfgs))
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i := range cfgs {
		i := i
		g.Go(func() error {
			res := runOne(ctx, cfgs[i])
			results[i] = res
			mu.Lock()
			defer mu.Unlock()
			for _, fn := range listeners {
				fn(res)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runOne(ctx context.Context, cfg config.Config) (res RunResult) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[%s] replication panicked: %v", RunID(cfg.Seed), r)
			res = RunResult{RunID: RunID(cfg.Seed), Seed: cfg.Seed, Err: fmt.Errorf("replication panicked: %v", r)}
		}
	}()
	return Run(ctx, cfg)
}

// Failures aggregates the errors of failed replications, or returns nil.
func Failures(results []RunResult) error {
	var result *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.RunID, r.Err))
		}
	}
	return result.ErrorOrNil()
}
