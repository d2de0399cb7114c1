package routing

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/mixnet-sim/sim"
)

// LoadView is a read-only view of per-mix load used by state-dependent policies.
// It is wired into the Engine after construction (see Engine.SetLoadView).
type LoadView interface {
	// QueueLength returns the number of messages currently waiting at mix id.
	QueueLength(id sim.MixID) int
}

// NextHopPolicy picks the next mix for a request in dynamic routing mode.
// Implementations receive the candidate set already filtered by the engine:
// sorted ascending, never containing the current mix or the destination.
// Loop avoidance beyond that is the policy's responsibility.
type NextHopPolicy interface {
	Name() string
	Choose(msg *sim.Message, current sim.MixID, candidates []sim.MixID) (sim.MixID, string)
}

// ValidNextHopPolicies is the set of recognized next-hop policy names.
// Empty string defaults to uniform.
var ValidNextHopPolicies = map[string]bool{"": true, "uniform": true, "weighted": true, "least-loaded": true}

// IsValidNextHopPolicy returns true if name is a recognized next-hop policy.
func IsValidNextHopPolicy(name string) bool {
	return ValidNextHopPolicies[name]
}

// UniformPolicy picks uniformly at random among candidates, preferring mixes the
// message has not visited yet.
type UniformPolicy struct {
	rng *rand.Rand
}

// Name implements NextHopPolicy.
func (p *UniformPolicy) Name() string { return "uniform" }

// Choose implements NextHopPolicy for UniformPolicy.
func (p *UniformPolicy) Choose(msg *sim.Message, _ sim.MixID, candidates []sim.MixID) (sim.MixID, string) {
	pool := unvisited(msg, candidates)
	idx := p.rng.Intn(len(pool))
	return pool[idx], fmt.Sprintf("uniform[%d/%d]", idx, len(pool))
}

// WeightedPolicy picks among candidates with probability proportional to a
// configured per-mix weight. Mixes without a weight count as 1.0; non-positive
// weights exclude a mix unless every candidate is excluded.
type WeightedPolicy struct {
	rng     *rand.Rand
	weights map[sim.MixID]float64
}

// Name implements NextHopPolicy.
func (p *WeightedPolicy) Name() string { return "weighted" }

// Choose implements NextHopPolicy for WeightedPolicy.
func (p *WeightedPolicy) Choose(msg *sim.Message, _ sim.MixID, candidates []sim.MixID) (sim.MixID, string) {
	pool := unvisited(msg, candidates)
	total := 0.0
	for _, id := range pool {
		total += p.weight(id)
	}
	if total <= 0 {
		idx := p.rng.Intn(len(pool))
		return pool[idx], "weighted (no positive weights, uniform fallback)"
	}
	target := p.rng.Float64() * total
	acc := 0.0
	for _, id := range pool {
		acc += p.weight(id)
		if target < acc {
			return id, fmt.Sprintf("weighted (w=%.3f of %.3f)", p.weight(id), total)
		}
	}
	// Floating point residue: the last positively weighted candidate wins.
	for i := len(pool) - 1; i >= 0; i-- {
		if p.weight(pool[i]) > 0 {
			return pool[i], "weighted (rounding)"
		}
	}
	return pool[len(pool)-1], "weighted (rounding)"
}

func (p *WeightedPolicy) weight(id sim.MixID) float64 {
	w, ok := p.weights[id]
	if !ok {
		return 1.0
	}
	if w < 0 {
		return 0
	}
	return w
}

// LeastLoadedPolicy routes to the candidate with the shortest queue.
// Ties are broken by lowest mix id (candidates arrive sorted).
type LeastLoadedPolicy struct {
	view LoadView
}

// Name implements NextHopPolicy.
func (p *LeastLoadedPolicy) Name() string { return "least-loaded" }

// Choose implements NextHopPolicy for LeastLoadedPolicy.
func (p *LeastLoadedPolicy) Choose(msg *sim.Message, _ sim.MixID, candidates []sim.MixID) (sim.MixID, string) {
	if p.view == nil {
		panic("LeastLoadedPolicy.Choose: load view not wired")
	}
	pool := unvisited(msg, candidates)
	target := pool[0]
	minLoad := p.view.QueueLength(target)
	for _, id := range pool[1:] {
		if load := p.view.QueueLength(id); load < minLoad {
			minLoad = load
			target = id
		}
	}
	return target, fmt.Sprintf("least-loaded (load=%d)", minLoad)
}

// setLoadView implements loadAware.
func (p *LeastLoadedPolicy) setLoadView(v LoadView) { p.view = v }

// loadAware is implemented by policies that need the LoadView.
type loadAware interface {
	setLoadView(v LoadView)
}

// NewNextHopPolicy creates a next-hop policy by name.
// Valid names are defined in ValidNextHopPolicies.
// Panics on unrecognized names; callers validate configuration first.
func NewNextHopPolicy(name string, weights map[sim.MixID]float64, rng *rand.Rand) NextHopPolicy {
	if !IsValidNextHopPolicy(name) {
		panic(fmt.Sprintf("unknown next-hop policy %q", name))
	}
	switch name {
	case "", "uniform":
		return &UniformPolicy{rng: rng}
	case "weighted":
		w := make(map[sim.MixID]float64, len(weights))
		for id, v := range weights {
			w[id] = v
		}
		return &WeightedPolicy{rng: rng, weights: w}
	case "least-loaded":
		return &LeastLoadedPolicy{}
	default:
		panic(fmt.Sprintf("unhandled next-hop policy %q", name))
	}
}

// unvisited returns the candidates the message has not traversed yet, or all
// candidates if every one of them was already visited.
func unvisited(msg *sim.Message, candidates []sim.MixID) []sim.MixID {
	if len(msg.Visited) == 0 {
		return candidates
	}
	seen := make(map[sim.MixID]bool, len(msg.Visited))
	for _, id := range msg.Visited {
		seen[id] = true
	}
	out := make([]sim.MixID, 0, len(candidates))
	for _, id := range candidates {
		if !seen[id] {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}
