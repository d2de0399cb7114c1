package network

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/config"
	"github.com/inference-sim/mixnet-sim/sim/internal/testutil"
	"github.com/inference-sim/mixnet-sim/sim/stats"
	"github.com/inference-sim/mixnet-sim/sim/workload"
)

// smallConfig returns a two-second run of three mixes on one cascade with a
// constant-rate client.
func smallConfig() config.Config {
	cfg := config.Default()
	cfg.HorizonSeconds = 2
	cfg.Traffic.Clients = []workload.ClientSpec{{
		ID:      "alice",
		Rate:    20,
		Arrival: workload.ArrivalSpec{Process: "constant"},
		Size:    workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 256}},
	}}
	return cfg
}

func TestRun_SameSeedIsByteIdentical(t *testing.T) {
	// GIVEN two runs of the same configuration with a stochastic client and strategy
	cfg := smallConfig()
	cfg.Mixes.Strategy = "poisson-delay"
	cfg.Mixes.MeanDelay = 20
	cfg.Traffic.Clients[0].Arrival.Process = "poisson"

	// WHEN both are run
	a := Run(context.Background(), cfg)
	b := Run(context.Background(), cfg)
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)

	// THEN their canonical encodings are identical
	ab, err := a.Results.MarshalBinary()
	require.NoError(t, err)
	bb, err := b.Results.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
	assert.Equal(t, a.Counters, b.Counters)
}

func TestRun_DifferentSeedsDiverge(t *testing.T) {
	cfg := smallConfig()
	cfg.Traffic.Clients[0].Arrival.Process = "poisson"
	a := Run(context.Background(), cfg)
	b := Run(context.Background(), cfg.WithSeed(cfg.Seed+1))
	require.NoError(t, a.Err)
	require.NoError(t, b.Err)
	ab, _ := a.Results.MarshalBinary()
	bb, _ := b.Results.MarshalBinary()
	assert.NotEqual(t, ab, bb)
}

func TestRun_GlobalRoutingWithReplies(t *testing.T) {
	// GIVEN a single cascade 0 -> 1 -> 2 with decision tracing
	cfg := smallConfig()
	cfg.TraceLevel = "decisions"

	// WHEN the run finishes
	res := Run(context.Background(), cfg)
	require.NoError(t, res.Err)
	assert.Equal(t, "finished", res.Status())

	// THEN every request followed the cascade
	c := res.Counters
	assert.Equal(t, int64(39), c.Injected, "20 msg/s over 2s, first send at 50ms")
	assert.Zero(t, c.RouteFailures)
	assert.Positive(t, c.Delivered)
	assert.LessOrEqual(t, c.Delivered, c.Injected)
	require.NotNil(t, res.Trace)
	for _, a := range res.Trace.Assignments {
		assert.True(t, a.Accepted)
		assert.Equal(t, []int{0, 1, 2}, a.Route)
	}
	first := res.Trace.Assignments[0].MessageID
	assert.Equal(t, []int{0, 1, 2}, res.Trace.Path(first, false))
	assert.Equal(t, []int{2, 1, 0}, res.Trace.Path(first+"-reply", true))

	// AND replies travel the reverse path back to the client
	assert.Positive(t, c.RepliesDelivered)
	rtt, ok := res.Results.Lookup(stats.RoundTripTime, stats.Global)
	require.True(t, ok)
	for _, s := range rtt.Samples {
		assert.GreaterOrEqual(t, s.Value, float64(sim.Millis(30)), "six link traversals of 5ms")
	}
	e2e, ok := res.Results.Lookup(stats.EndToEndLatency, stats.ClientEntity("alice"))
	require.True(t, ok)
	assert.InDelta(t, float64(sim.Millis(15)), e2e.Mean(), 1, "three link traversals, no mixing delay")
	assert.Equal(t, sim.Seconds(2), res.Results.End)
	assert.Equal(t, string(sim.GlobalRouting), res.Results.Metadata["routing_mode"])
	assert.Contains(t, res.Results.Metadata["rng_streams"], "client_alice,link,routing,strategy_0")
}

func TestRun_BackpressureLosesNothing(t *testing.T) {
	// GIVEN tiny queues drained by timed batches slower than the offered load
	cfg := smallConfig()
	cfg.HorizonSeconds = 10
	cfg.Replies.Enabled = false
	cfg.Mixes.QueueCapacity = 2
	cfg.Mixes.Strategy = "timed-batch"
	cfg.Mixes.BatchSize = 2
	cfg.Mixes.BatchInterval = 100
	cfg.Traffic.Clients[0].Rate = 50
	cfg.Traffic.Clients[0].StopSeconds = 1

	// WHEN the run finishes
	res := Run(context.Background(), cfg)
	require.NoError(t, res.Err)

	// THEN messages were parked but every one was eventually delivered
	c := res.Counters
	assert.Positive(t, c.Backpressured)
	assert.Zero(t, c.Backlogged)
	assert.Equal(t, c.Injected, c.Delivered)
	bp, ok := res.Results.Lookup(stats.BackpressureEvents, stats.MixEntity(0))
	require.True(t, ok)
	assert.Equal(t, float64(c.Backpressured), bp.Total(), "only the entry mix is overloaded")
}

func TestRun_PaddedBatchesDropDummiesAtExit(t *testing.T) {
	cfg := smallConfig()
	cfg.Mixes.Strategy = "timed-batch"
	cfg.Mixes.BatchSize = 3
	cfg.Mixes.BatchInterval = 100
	cfg.Mixes.PadBatches = true

	res := Run(context.Background(), cfg)
	require.NoError(t, res.Err)
	assert.Positive(t, res.Counters.DummiesDropped)
	assert.Positive(t, res.Counters.Delivered)
	_, ok := res.Results.Lookup(stats.DummyDropped, stats.MixEntity(2))
	assert.True(t, ok, "cascade dummies travel to the exit")
}

func TestRun_SourceAndDynamicRouting(t *testing.T) {
	for _, mode := range []sim.RoutingMode{sim.SourceRouting, sim.DynamicRouting} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := smallConfig()
			cfg.Routing.Mode = string(mode)
			cfg.Routing.Cascades = nil
			cfg.Mixes.Count = 6
			cfg.TraceLevel = "decisions"

			res := Run(context.Background(), cfg)
			require.NoError(t, res.Err)
			assert.Zero(t, res.Counters.RouteFailures)
			assert.Positive(t, res.Counters.Delivered)
			assert.Positive(t, res.Counters.RepliesDelivered)
			assert.NotEmpty(t, res.Trace.Hops)
		})
	}
}

func TestRun_DynamicRepliesRetraceRevisitingPaths(t *testing.T) {
	// GIVEN dynamic routing over three mixes with paths longer than the mix
	// count, so every request revisits its entry mix before reaching mix 2
	cfg := smallConfig()
	cfg.Routing.Mode = string(sim.DynamicRouting)
	cfg.Routing.Cascades = nil
	cfg.Routing.PathLength = 5
	cfg.Traffic.Clients[0].Destinations = []int{2}
	cfg.Traffic.Clients[0].MaxMessages = 5
	cfg.TraceLevel = "decisions"

	// WHEN the run completes
	res := Run(context.Background(), cfg)
	require.NoError(t, res.Err)
	require.Equal(t, int64(5), res.Counters.RepliesDelivered)

	// THEN each reply walks the full reversed request path
	for seq := 1; seq <= 5; seq++ {
		id := fmt.Sprintf("alice-%d", seq)
		request := res.Trace.Path(id, false)
		require.Len(t, request, 5, id)
		assert.Equal(t, 2, request[4], id)
		reversed := make([]int, len(request))
		for i, m := range request {
			reversed[len(request)-1-i] = m
		}
		assert.Equal(t, reversed, res.Trace.Path(id+"-reply", true), id)
	}
}

func TestRun_TimedBatchWithoutHorizonTerminates(t *testing.T) {
	// GIVEN an unpadded timed-batch network with no horizon and a bounded client
	cfg := config.Default()
	cfg.HorizonSeconds = 0
	cfg.Mixes.Strategy = "timed-batch"
	cfg.Mixes.BatchInterval = 10
	cfg.Traffic.Clients = []workload.ClientSpec{{
		ID:          "alice",
		Rate:        20,
		Arrival:     workload.ArrivalSpec{Process: "constant"},
		Size:        workload.DistSpec{Type: "constant", Params: map[string]float64{"value": 256}},
		MaxMessages: 5,
	}}
	require.NoError(t, cfg.Validate())

	// WHEN it is run under a deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := Run(ctx, cfg)

	// THEN it drains and stops once the ticker has nothing left to release
	require.NoError(t, res.Err)
	assert.Equal(t, "finished", res.Status())
	assert.Equal(t, int64(5), res.Counters.Injected)
	assert.Equal(t, int64(5), res.Counters.Delivered)
	assert.Equal(t, int64(5), res.Counters.RepliesDelivered)
}

func TestBuild_RouteFailureIsLocal(t *testing.T) {
	// GIVEN fixed traffic to a mix that does not exist, and to the real exit
	cfg := smallConfig()
	traffic := []workload.ClientSends{{
		Client: "mallory",
		Sends: []workload.Send{
			{Time: sim.Millis(10), Size: 100, Destination: 7},
			{Time: sim.Millis(20), Size: 100, Destination: 2},
		},
	}}
	n, err := NewBuilder(cfg).WithTraffic(traffic).Build(context.Background())
	require.NoError(t, err)

	// WHEN run
	res := n.Run(context.Background())

	// THEN the bad message is counted and the run continues
	require.NoError(t, res.Err)
	assert.Equal(t, int64(2), res.Counters.Injected)
	assert.Equal(t, int64(1), res.Counters.RouteFailures)
	assert.Equal(t, int64(1), res.Counters.Delivered)
	rf, ok := res.Results.Lookup(stats.RouteFailures, stats.ClientEntity("mallory"))
	require.True(t, ok)
	assert.Equal(t, 1.0, rf.Total())
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Routing.Mode = "ONION_ROUTING"
	_, err := NewBuilder(cfg).Build(context.Background())
	assert.True(t, sim.IsFatal(err))
}

func TestRun_TraceReplay(t *testing.T) {
	// GIVEN a capture with one outgoing HTTPS flow and its responses
	dir := t.TempDir()
	frames := []testutil.Frame{
		{At: 0, Src: "192.168.1.10", Dst: "93.184.216.34", SrcPort: 50000, DstPort: 443, Payload: 300},
		{At: 2 * time.Millisecond, Src: "93.184.216.34", Dst: "192.168.1.10", SrcPort: 443, DstPort: 50000, Payload: 1200},
		{At: 100 * time.Millisecond, Src: "192.168.1.10", Dst: "93.184.216.34", SrcPort: 50000, DstPort: 443, Payload: 200},
		{At: 300 * time.Millisecond, Src: "192.168.1.10", Dst: "93.184.216.34", SrcPort: 50000, DstPort: 443, Payload: 400},
	}
	testutil.WritePcap(t, dir, "laptop.pcap", frames)
	cfg := smallConfig()
	cfg.Traffic.Clients = nil
	cfg.Traffic.Dir = dir
	cfg.Traffic.FlowFilters = []string{"outgoing"}

	// WHEN replayed
	res := Run(context.Background(), cfg)
	require.NoError(t, res.Err)

	// THEN each outgoing payload packet became one request from the laptop
	assert.Equal(t, int64(3), res.Counters.Injected)
	assert.Equal(t, int64(3), res.Counters.Delivered)
	sent, ok := res.Results.Lookup(stats.MessagesSent, stats.ClientEntity("192.168.1.10"))
	require.True(t, ok)
	assert.Equal(t, 3.0, sent.Total())
	assert.Contains(t, res.Results.Metadata["flow_filter"], "outgoing")
}

func TestRun_CancelledContextKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, smallConfig())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Contains(t, res.Status(), "failed")
	require.NotNil(t, res.Results)
}

func TestNetwork_OnFinishedAndSingleRun(t *testing.T) {
	n, err := NewBuilder(smallConfig()).Build(context.Background())
	require.NoError(t, err)
	var got []RunResult
	n.OnFinished(func(r RunResult) { got = append(got, r) })

	res := n.Run(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, res.RunID, got[0].RunID)
	assert.Equal(t, "seed-42", res.RunID)
	assert.Panics(t, func() { n.Run(context.Background()) })
}

func TestNetwork_Accessors(t *testing.T) {
	n, err := NewBuilder(smallConfig()).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sim.GlobalRouting, n.Engine().Mode())
	assert.Equal(t, "mix-1", n.Mix(1).Address)
	assert.Equal(t, sim.Seconds(2), n.Scheduler().Horizon())
	assert.Zero(t, n.Counters().Injected)
	require.NoError(t, n.Start())
	assert.Error(t, n.Start())
}
