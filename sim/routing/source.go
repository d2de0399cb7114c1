package routing

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/mixnet-sim/sim"
)

// BuildSourceRoute builds a loop-free route of pathLength mixes that ends at
// destination, drawing the intermediate hops from nodes (the client's discovered
// node set). nodes must contain destination and at least pathLength-1 other mixes.
func BuildSourceRoute(rng *rand.Rand, nodes []sim.MixID, pathLength int, destination sim.MixID) (sim.MixList, error) {
	if pathLength < 1 {
		return sim.MixList{}, fmt.Errorf("path length must be >= 1, got %d", pathLength)
	}
	found := false
	others := make([]sim.MixID, 0, len(nodes))
	seen := make(map[sim.MixID]bool, len(nodes))
	for _, id := range nodes {
		if seen[id] {
			continue
		}
		seen[id] = true
		if id == destination {
			found = true
			continue
		}
		others = append(others, id)
	}
	if !found {
		return sim.MixList{}, fmt.Errorf("destination %d not in discovered nodes: %w", destination, sim.ErrInvalidDestination)
	}
	if len(others) < pathLength-1 {
		return sim.MixList{}, fmt.Errorf("need %d intermediate mixes, only %d discovered", pathLength-1, len(others))
	}
	rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
	hops := append(others[:pathLength-1:pathLength-1], destination)
	return sim.NewMixList(hops...)
}

// validateRoute checks a client-supplied route against the known mix set.
func validateRoute(route sim.MixList, destination sim.MixID, known func(sim.MixID) bool, forbidLoops bool) error {
	if route.IsEmpty() {
		return fmt.Errorf("empty route")
	}
	for _, id := range route.IDs() {
		if !known(id) {
			return fmt.Errorf("route %s: unknown mix %d", route, id)
		}
	}
	if forbidLoops && route.HasLoop() {
		return fmt.Errorf("route %s revisits a mix", route)
	}
	if route.Exit() != destination {
		return fmt.Errorf("route %s exits at %d, want %d: %w", route, route.Exit(), destination, sim.ErrInvalidDestination)
	}
	return nil
}
