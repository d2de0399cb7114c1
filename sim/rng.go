package sim

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
)

// Subsystem names one independent random stream of a run.
type Subsystem string

const (
	// RoutingStream drives cascade choice and dynamic next hops.
	RoutingStream Subsystem = "routing"
	// LinkStream drives per-hop link jitter.
	LinkStream Subsystem = "link"
)

// StrategyStream is the stream of the output strategy running at mix id.
func StrategyStream(id MixID) Subsystem {
	return Subsystem("strategy_" + strconv.Itoa(int(id)))
}

// ClientStream is the stream of traffic source id.
func ClientStream(id string) Subsystem {
	return Subsystem("client_" + id)
}

// PartitionedRNG hands out one *rand.Rand per subsystem, seeded with
// seed XOR fnv1a64(name). Streams are created on first use and cached, so
// drawing from one never shifts another and creation order does not matter.
//
// Not safe for concurrent use; each replication owns its own instance.
type PartitionedRNG struct {
	seed    int64
	streams map[Subsystem]*rand.Rand
}

// NewPartitionedRNG returns the stream set of a run seeded with seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, streams: make(map[Subsystem]*rand.Rand)}
}

// For returns the stream of s, creating it on first use.
func (p *PartitionedRNG) For(s Subsystem) *rand.Rand {
	rng, ok := p.streams[s]
	if !ok {
		rng = rand.New(rand.NewSource(p.seed ^ nameHash(s)))
		p.streams[s] = rng
	}
	return rng
}

// Seed is the run seed every stream derives from.
func (p *PartitionedRNG) Seed() int64 { return p.seed }

// Subsystems lists the streams drawn so far, sorted by name.
func (p *PartitionedRNG) Subsystems() []Subsystem {
	out := make([]Subsystem, 0, len(p.streams))
	for s := range p.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func nameHash(s Subsystem) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
