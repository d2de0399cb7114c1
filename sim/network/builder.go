// Package network assembles mix nodes, the routing engine, traffic sources and
// the statistics recorder into one runnable replication, and runs batches of
// independent replications in parallel.
package network

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/config"
	"github.com/inference-sim/mixnet-sim/sim/flow"
	"github.com/inference-sim/mixnet-sim/sim/mix"
	"github.com/inference-sim/mixnet-sim/sim/routing"
	"github.com/inference-sim/mixnet-sim/sim/stats"
	"github.com/inference-sim/mixnet-sim/sim/trace"
	"github.com/inference-sim/mixnet-sim/sim/workload"
)

// prefetchBuffer is the channel depth between trace readers and the index.
const prefetchBuffer = 1024

// RunID names the replication driven by seed.
func RunID(seed int64) string {
	return fmt.Sprintf("seed-%d", seed)
}

// Builder constructs a Network in phases. Build creates every component without
// cross references, then wires listeners, registers mixes with the info service
// and hands the load view to the routing engine.
type Builder struct {
	cfg     config.Config
	traffic []workload.ClientSends
}

// NewBuilder creates a Builder for cfg. cfg is validated by Build.
func NewBuilder(cfg config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithTraffic replaces the configured traffic source with fixed send schedules.
func (b *Builder) WithTraffic(traffic []workload.ClientSends) *Builder {
	b.traffic = traffic
	return b
}

// Build constructs and initializes the network. Configuration problems are
// returned as *sim.ConfigurationError, trace I/O problems as *sim.TraceReadFailure.
func (b *Builder) Build(ctx context.Context) (*Network, error) {
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		cfg:      cfg,
		runID:    RunID(cfg.Seed),
		rng:      sim.NewPartitionedRNG(cfg.Seed),
		sched:    sim.NewScheduler(cfg.Horizon()),
		recorder: stats.NewRecorder(),
		pending:  make(map[string]int64),
		clients:  make(map[sim.Pseudonym]*routing.ClientState),
	}
	n.linkRNG = n.rng.For(sim.LinkStream)

	rc, err := cfg.RoutingEngineConfig()
	if err != nil {
		return nil, &sim.ConfigurationError{Key: "CASCADES", Err: err}
	}
	if n.engine, err = routing.NewEngine(rc, n.rng.For(sim.RoutingStream)); err != nil {
		return nil, err
	}
	if level, _ := trace.ParseLevel(cfg.TraceLevel); level != trace.LevelNone {
		n.trace = trace.New(level)
	}

	secret := []byte(fmt.Sprintf("mixnet-sim/%d", cfg.Seed))
	n.nodes = make([]*node, cfg.Mixes.Count)
	for i := range n.nodes {
		id := sim.MixID(i)
		strategy := mix.NewStrategy(cfg.StrategyConfig(), n.rng.For(sim.StrategyStream(id)))
		p, err := mix.NewPipeline(mix.PipelineConfig{
			Mix:            id,
			Capacity:       cfg.Mixes.QueueCapacity,
			MaxMessageSize: cfg.Mixes.MaxMessageSize,
		}, strategy, mix.NewRecoder(cfg.Mixes.Recoder, id, secret), n.sched)
		if err != nil {
			return nil, err
		}
		n.nodes[i] = &node{Node: mix.NewNode(id, fmt.Sprintf("mix-%d", i), p)}
	}

	if b.traffic != nil {
		n.traffic = b.traffic
	} else if n.traffic, err = b.loadTraffic(ctx, n); err != nil {
		return nil, err
	}

	if err := n.initialize(); err != nil {
		return nil, err
	}
	return n, nil
}

func (b *Builder) loadTraffic(ctx context.Context, n *Network) ([]workload.ClientSends, error) {
	cfg := b.cfg
	if cfg.Traffic.Dir == "" {
		traffic, err := workload.Generate(cfg.Traffic.Clients, n.rng, n.sched.Horizon(), cfg.Exits())
		if err != nil {
			return nil, &sim.ConfigurationError{Key: "CLIENTS", Err: err}
		}
		return traffic, nil
	}

	readers, err := flow.OpenDir(cfg.Traffic.Dir)
	if err != nil {
		return nil, err
	}
	packets, err := flow.Collect(ctx, readers, prefetchBuffer)
	if err != nil {
		return nil, err
	}
	local := flow.DefaultLocalPrefixes()
	if len(cfg.Traffic.LocalPrefixes) > 0 {
		if local, err = flow.ParsePrefixes(cfg.Traffic.LocalPrefixes); err != nil {
			return nil, &sim.ConfigurationError{Key: "LOCAL_PREFIXES", Err: err}
		}
	}
	chain, err := flow.ParseChain(cfg.Traffic.FlowFilters)
	if err != nil {
		return nil, err
	}
	idx := flow.BuildIndex(packets, local)
	traffic := workload.FromTrace(packets, idx, chain, workload.HashExits(cfg.Exits()))
	n.recorder.SetMeta("flow_filter", chain.Name()+"@"+chain.Version())
	logrus.Infof("[%s] trace %s: %d packets, %d flows, %d clients", n.runID, cfg.Traffic.Dir, len(packets), idx.Len(), len(traffic))
	return traffic, nil
}
