package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstDraws(rng *PartitionedRNG, s Subsystem, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = rng.For(s).Int63()
	}
	return out
}

func TestPartitionedRNG_SameSeedSameStreams(t *testing.T) {
	for _, seed := range []int64{0, 42, -1, math.MaxInt64, math.MinInt64} {
		a := firstDraws(NewPartitionedRNG(seed), RoutingStream, 5)
		b := firstDraws(NewPartitionedRNG(seed), RoutingStream, 5)
		assert.Equal(t, a, b, "seed %d", seed)
	}
}

func TestPartitionedRNG_StreamsAreIsolated(t *testing.T) {
	// GIVEN two runs with the same seed
	busy := NewPartitionedRNG(42)
	quiet := NewPartitionedRNG(42)

	// WHEN one of them draws heavily from the link stream first
	firstDraws(busy, LinkStream, 100)
	firstDraws(busy, StrategyStream(3), 10)

	// THEN its routing stream is unaffected
	assert.Equal(t, firstDraws(quiet, RoutingStream, 5), firstDraws(busy, RoutingStream, 5))
}

func TestPartitionedRNG_DistinctSubsystemsDiverge(t *testing.T) {
	names := []Subsystem{RoutingStream, LinkStream, StrategyStream(0), StrategyStream(1), ClientStream("alice"), ClientStream("bob"), ""}
	rng := NewPartitionedRNG(0)
	seen := make(map[int64]Subsystem)
	for _, s := range names {
		v := rng.For(s).Int63()
		if prev, ok := seen[v]; ok {
			t.Errorf("%q and %q start with the same value", s, prev)
		}
		seen[v] = s
	}
}

func TestPartitionedRNG_CachesAndLists(t *testing.T) {
	rng := NewPartitionedRNG(7)
	assert.Empty(t, rng.Subsystems())

	require.Same(t, rng.For(ClientStream("b")), rng.For(ClientStream("b")))
	rng.For(LinkStream)

	assert.Equal(t, []Subsystem{"client_b", "link"}, rng.Subsystems())
	assert.Equal(t, int64(7), rng.Seed())
}

func TestStreamNames(t *testing.T) {
	assert.Equal(t, Subsystem("strategy_12"), StrategyStream(12))
	assert.Equal(t, Subsystem("client_alice"), ClientStream("alice"))
}

func BenchmarkPartitionedRNG_For(b *testing.B) {
	rng := NewPartitionedRNG(42)
	rng.For(RoutingStream)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.For(RoutingStream)
	}
}
