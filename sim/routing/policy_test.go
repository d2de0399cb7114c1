package routing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inference-sim/mixnet-sim/sim"
)

type fakeLoad map[sim.MixID]int

func (f fakeLoad) QueueLength(id sim.MixID) int { return f[id] }

func TestNewNextHopPolicy_UnknownNamePanics(t *testing.T) {
	assert.Panics(t, func() { NewNextHopPolicy("round-robin", nil, rand.New(rand.NewSource(1))) })
}

func TestNewNextHopPolicy_EmptyDefaultsToUniform(t *testing.T) {
	p := NewNextHopPolicy("", nil, rand.New(rand.NewSource(1)))
	assert.Equal(t, "uniform", p.Name())
}

func TestUniformPolicy_AvoidsVisitedWhileAlternativesExist(t *testing.T) {
	// GIVEN a message that already visited mixes 0 and 1
	p := NewNextHopPolicy("uniform", nil, rand.New(rand.NewSource(7)))
	msg := &sim.Message{Visited: []sim.MixID{0, 1}}

	// WHEN choosing among 0, 1, 2 many times
	for i := 0; i < 50; i++ {
		got, _ := p.Choose(msg, 1, []sim.MixID{0, 1, 2})
		// THEN only the unvisited mix 2 is ever selected
		assert.Equal(t, sim.MixID(2), got)
	}

	// AND when every candidate was visited, one of them is still returned
	got, _ := p.Choose(msg, 3, []sim.MixID{0, 1})
	assert.Contains(t, []sim.MixID{0, 1}, got)
}

func TestWeightedPolicy_ZeroWeightNeverChosen(t *testing.T) {
	p := NewNextHopPolicy("weighted", map[sim.MixID]float64{0: 0, 1: 3, 2: 1}, rand.New(rand.NewSource(3)))
	counts := map[sim.MixID]int{}
	for i := 0; i < 2000; i++ {
		got, _ := p.Choose(&sim.Message{}, sim.NoHop, []sim.MixID{0, 1, 2})
		counts[got]++
	}
	assert.Zero(t, counts[0])
	// mix 1 carries three times the weight of mix 2
	assert.Greater(t, counts[1], 2*counts[2])
}

func TestLeastLoadedPolicy_TieBreaksByLowestID(t *testing.T) {
	p := NewNextHopPolicy("least-loaded", nil, nil)
	p.(*LeastLoadedPolicy).setLoadView(fakeLoad{0: 5, 1: 2, 2: 2, 3: 9})

	got, _ := p.Choose(&sim.Message{}, sim.NoHop, []sim.MixID{0, 1, 2, 3})
	assert.Equal(t, sim.MixID(1), got)
}

func TestLeastLoadedPolicy_RequiresLoadView(t *testing.T) {
	e, err := NewEngine(Config{Mode: sim.DynamicRouting, NextHopPolicy: "least-loaded"}, rand.New(rand.NewSource(1)))
	assert.NoError(t, err)
	e.InfoService().Register("a")
	assert.Error(t, e.Initialize())

	e.SetLoadView(fakeLoad{})
	assert.NoError(t, e.Initialize())
}

func TestBuildSourceRoute(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	route, err := BuildSourceRoute(rng, []sim.MixID{0, 1, 2, 3}, 3, 2)
	assert.NoError(t, err)
	assert.Equal(t, 3, route.Len())
	assert.Equal(t, sim.MixID(2), route.Exit())
	assert.False(t, route.HasLoop())

	_, err = BuildSourceRoute(rng, []sim.MixID{0, 1}, 3, 1)
	assert.Error(t, err, "not enough intermediate mixes")

	_, err = BuildSourceRoute(rng, []sim.MixID{0, 1}, 2, 5)
	assert.ErrorIs(t, err, sim.ErrInvalidDestination)
}
