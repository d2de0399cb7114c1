package network

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/config"
	"github.com/inference-sim/mixnet-sim/sim/mix"
	"github.com/inference-sim/mixnet-sim/sim/routing"
	"github.com/inference-sim/mixnet-sim/sim/stats"
	"github.com/inference-sim/mixnet-sim/sim/trace"
	"github.com/inference-sim/mixnet-sim/sim/workload"
)

// Counters summarizes the message flow of one replication.
type Counters struct {
	Injected         int64 // requests created by clients
	RouteFailures    int64 // requests rejected by route assignment
	Forwarded        int64 // mix-to-mix transmissions
	Delivered        int64 // requests delivered at their exit mix
	RepliesDelivered int64 // replies delivered back to their client
	DummiesDropped   int64 // cover messages discarded at their terminus
	Backpressured    int64 // messages parked because a lane was full
	Backlogged       int   // messages still parked when the run ended
}

// RunResult is the outcome of one replication.
type RunResult struct {
	RunID    string
	Seed     int64
	Results  *stats.ResultSet       // nil if the replication failed before running
	Counters Counters
	Trace    *trace.Log // nil unless decision tracing is enabled
	Err      error
}

// Status returns "finished" or "failed(<reason>)".
func (r RunResult) Status() string {
	if r.Err != nil {
		return fmt.Sprintf("failed(%v)", r.Err)
	}
	return "finished"
}

// node couples a mix with the transport state kept in front of it.
type node struct {
	*mix.Node
	backlog [2][]*sim.Message // messages waiting for unprocessed capacity, per lane
	pumping [2]bool
}

func (n *node) load() int {
	return n.QueueLength() + len(n.backlog[mix.Requests]) + len(n.backlog[mix.Replies])
}

// loadView exposes per-mix queue lengths to state-dependent next-hop policies.
type loadView struct {
	nodes []*node
}

func (v loadView) QueueLength(id sim.MixID) int {
	if id < 0 || int(id) >= len(v.nodes) {
		return 0
	}
	return v.nodes[id].load()
}

// Network is one replication: its own scheduler, routing engine, mixes, traffic
// and recorder. Nothing is shared between networks.
//
// Thread-safety: NOT thread-safe. Run drives every component from one goroutine.
type Network struct {
	cfg       config.Config
	runID     string
	rng       *sim.PartitionedRNG
	linkRNG   *rand.Rand
	sched     *sim.Scheduler
	engine    *routing.Engine
	nodes     []*node
	recorder  *stats.Recorder
	trace     *trace.Log
	traffic   []workload.ClientSends
	clients   map[sim.Pseudonym]*routing.ClientState
	pending   map[string]int64 // request ID -> injection time, awaiting a reply
	counters  Counters
	listeners []func(RunResult)
	msgSeq    int64
	started   bool
	ran       bool
}

// initialize wires the components created by Build.
func (n *Network) initialize() error {
	info := n.engine.InfoService()
	for _, nd := range n.nodes {
		if id := info.Register(nd.Address); id != nd.ID {
			return fmt.Errorf("mix %s registered as %d, want %d", nd.Address, id, nd.ID)
		}
	}
	n.engine.SetLoadView(loadView{nodes: n.nodes})
	if n.trace != nil {
		n.engine.SetTrace(n.trace, n.sched)
	}
	if err := n.engine.Initialize(); err != nil {
		return err
	}

	for _, nd := range n.nodes {
		nd := nd
		nd.Pipeline.OnProcessed(func(dir mix.Direction) { n.drain(nd, dir) })
		nd.Pipeline.OnCapacity(func(dir mix.Direction) { n.pump(nd, dir) })
		if n.engine.Mode() == sim.GlobalRouting {
			if f := n.cascadeDummies(nd.ID); f != nil {
				nd.Pipeline.SetDummyFactory(f)
			}
		}
	}
	for _, cs := range n.traffic {
		n.clients[cs.Client] = &routing.ClientState{ID: cs.Client}
	}

	n.recorder.SetMeta("routing_mode", string(n.engine.Mode()))
	n.recorder.SetMeta("output_strategy", n.cfg.Mixes.Strategy)
	n.recorder.SetMeta("recoder", n.cfg.Mixes.Recoder)
	n.recorder.SetMeta("mixes", fmt.Sprint(len(n.nodes)))
	n.recorder.SetMeta("clients", fmt.Sprint(len(n.traffic)))
	return nil
}

// cascadeDummies returns a factory sending cover traffic from mix id along the
// rest of the first cascade containing it, or nil if id is on no cascade.
func (n *Network) cascadeDummies(id sim.MixID) mix.DummyFactory {
	for _, c := range n.engine.Cascades() {
		idx := c.IndexOf(id)
		if idx < 0 {
			continue
		}
		forward := sim.MustMixList(c.IDs()[idx:]...)
		backward := sim.MustMixList(c.Reverse().IDs()[c.Len()-1-idx:]...)
		return func(dir mix.Direction, _ int64) *sim.Message {
			route, kind := forward, sim.KindRequest
			if dir == mix.Replies {
				route, kind = backward, sim.KindReply
			}
			return &sim.Message{
				Kind:        kind,
				Destination: route.Exit(),
				Route:       route,
				Visited:     []sim.MixID{id},
			}
		}
	}
	return nil
}

// RunID returns the identifier of this replication.
func (n *Network) RunID() string { return n.runID }

// Engine returns the routing engine.
func (n *Network) Engine() *routing.Engine { return n.engine }

// Scheduler returns the replication's scheduler.
func (n *Network) Scheduler() *sim.Scheduler { return n.sched }

// Mix returns the node with the given id.
func (n *Network) Mix(id sim.MixID) *mix.Node { return n.nodes[id].Node }

// Counters returns a snapshot of the message counters.
func (n *Network) Counters() Counters {
	c := n.counters
	c.Backlogged = 0
	for _, nd := range n.nodes {
		c.Backlogged += len(nd.backlog[mix.Requests]) + len(nd.backlog[mix.Replies])
	}
	return c
}

// OnFinished registers fn to receive the result when Run returns.
func (n *Network) OnFinished(fn func(RunResult)) {
	n.listeners = append(n.listeners, fn)
}

// Start arms the output strategies and schedules the first send of every client.
func (n *Network) Start() error {
	if n.started {
		return fmt.Errorf("network %s already started", n.runID)
	}
	n.started = true
	for _, nd := range n.nodes {
		if err := nd.Pipeline.Start(); err != nil {
			return err
		}
	}
	for _, cs := range n.traffic {
		n.scheduleSend(n.clients[cs.Client], cs.Sends, 0)
	}
	return nil
}

// Run executes the replication until the horizon, until it runs out of events, or
// until ctx is done. Statistics recorded before cancellation are kept.
// Panics if called more than once.
func (n *Network) Run(ctx context.Context) RunResult {
	if n.ran {
		panic("Network.Run called more than once")
	}
	n.ran = true
	res := RunResult{RunID: n.runID, Seed: n.cfg.Seed, Trace: n.trace}
	if !n.started {
		if err := n.Start(); err != nil {
			res.Err = err
			n.finish(res)
			return res
		}
	}

	res.Err = n.sched.Run(ctx)
	end := n.sched.Now()
	if h := n.cfg.Horizon(); res.Err == nil && h > 0 {
		end = h
	}
	n.recorder.SetMeta("events", fmt.Sprint(n.sched.Executed()))
	streams := make([]string, 0, 8)
	for _, st := range n.rng.Subsystems() {
		streams = append(streams, string(st))
	}
	n.recorder.SetMeta("rng_streams", strings.Join(streams, ","))
	res.Counters = n.Counters()
	res.Results = n.recorder.Finalize(n.runID, n.cfg.Seed, 0, end)
	if res.Err != nil {
		logrus.Warnf("[%s] stopped at tick %d: %v", n.runID, n.sched.Now(), res.Err)
	} else {
		logrus.Infof("[%s] finished at tick %d: %d events, %d delivered, %d replies", n.runID, end, n.sched.Executed(), res.Counters.Delivered, res.Counters.RepliesDelivered)
	}
	n.finish(res)
	return res
}

func (n *Network) finish(res RunResult) {
	for _, fn := range n.listeners {
		fn(res)
	}
}

// Run builds and runs one replication of cfg.
func Run(ctx context.Context, cfg config.Config) RunResult {
	n, err := NewBuilder(cfg).Build(ctx)
	if err != nil {
		return RunResult{RunID: RunID(cfg.Seed), Seed: cfg.Seed, Err: err}
	}
	return n.Run(ctx)
}
