package routing

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/trace"
)

func newTestEngine(t *testing.T, cfg Config, mixes int) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	for i := 0; i < mixes; i++ {
		e.InfoService().Register(string(rune('a' + i)))
	}
	require.NoError(t, e.Initialize())
	return e
}

func TestNewEngine_RejectsUnknownMode(t *testing.T) {
	_, err := NewEngine(Config{Mode: "BOGUS"}, rand.New(rand.NewSource(1)))
	var cfgErr *sim.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, sim.RoutingModeKey, cfgErr.Key)
}

func TestNewEngine_GlobalNeedsLoopFreeCascades(t *testing.T) {
	_, err := NewEngine(Config{Mode: sim.GlobalRouting}, rand.New(rand.NewSource(1)))
	assert.Error(t, err, "no cascades")

	_, err = NewEngine(Config{Mode: sim.GlobalRouting, Cascades: []sim.MixList{sim.MustMixList(0, 1, 0)}}, rand.New(rand.NewSource(1)))
	assert.Error(t, err, "loop")
}

func TestEngine_InitializeRejectsUnknownCascadeMix(t *testing.T) {
	e, err := NewEngine(Config{Mode: sim.GlobalRouting, Cascades: []sim.MixList{sim.MustMixList(0, 1, 5)}}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	e.InfoService().Register("a")
	e.InfoService().Register("b")
	assert.True(t, sim.IsFatal(e.Initialize()))
}

func TestEngine_AssignBeforeInitializePanics(t *testing.T) {
	e, err := NewEngine(Config{Mode: sim.DynamicRouting}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Panics(t, func() {
		_, _ = e.AssignRoute(&sim.Message{}, &ClientState{ID: "c"})
	})
}

func TestGlobalRouting_PinnedCascadeWrongExit_InvalidDestination(t *testing.T) {
	// GIVEN global routing with cascade [0 -> 1 -> 2] and a client pinned to it
	e := newTestEngine(t, Config{
		Mode:     sim.GlobalRouting,
		Cascades: []sim.MixList{sim.MustMixList(0, 1, 2), sim.MustMixList(3, 4, 5)},
	}, 6)
	client := &ClientState{ID: "alice", Pinned: true, Cascade: 0}

	// WHEN the client requests destination 5
	_, err := e.AssignRoute(&sim.Message{ID: "m1", Destination: 5}, client)

	// THEN the request fails with an invalid-destination error
	assert.True(t, errors.Is(err, sim.ErrInvalidDestination))

	// AND destination 2 succeeds with the pinned cascade
	route, err := e.AssignRoute(&sim.Message{ID: "m2", Destination: 2}, client)
	require.NoError(t, err)
	assert.True(t, route.Equal(sim.MustMixList(0, 1, 2)))
}

func TestGlobalRouting_SelectsCascadeByExit(t *testing.T) {
	e := newTestEngine(t, Config{
		Mode:     sim.GlobalRouting,
		Cascades: []sim.MixList{sim.MustMixList(0, 1, 2), sim.MustMixList(3, 4, 5)},
	}, 6)
	client := &ClientState{ID: "bob"}

	route, err := e.AssignRoute(&sim.Message{Destination: 5}, client)
	require.NoError(t, err)
	assert.Equal(t, sim.MixID(3), route.Entry())

	_, err = e.AssignRoute(&sim.Message{Destination: 1}, client)
	assert.True(t, errors.Is(err, sim.ErrInvalidDestination), "no cascade exits at 1")
}

func TestGlobalRouting_NextHopWalksCascade(t *testing.T) {
	e := newTestEngine(t, Config{Mode: sim.GlobalRouting, Cascades: []sim.MixList{sim.MustMixList(0, 1, 2)}}, 3)
	msg := &sim.Message{Destination: 2, Route: sim.MustMixList(0, 1, 2)}

	msg.HopIndex = 0
	assert.Equal(t, sim.MixID(1), e.NextHop(msg, 0))
	msg.HopIndex = 1
	assert.Equal(t, sim.MixID(2), e.NextHop(msg, 1))
	msg.HopIndex = 2
	assert.Equal(t, sim.NoHop, e.NextHop(msg, 2), "terminus")
}

func TestNextHop_NeverPastEndOfRoute(t *testing.T) {
	// GIVEN a reply whose route ends at mix 0 but whose destination is elsewhere
	e := newTestEngine(t, Config{Mode: sim.SourceRouting}, 3)
	msg := &sim.Message{Kind: sim.KindReply, Destination: 7, Route: sim.MustMixList(2, 1, 0), HopIndex: 2}

	// THEN the last element yields NoHop rather than an out-of-range index
	assert.Equal(t, sim.NoHop, e.NextHop(msg, 0))
}

func TestSourceRouting_ValidatesClientRoute(t *testing.T) {
	e := newTestEngine(t, Config{Mode: sim.SourceRouting}, 4)

	tests := []struct {
		name    string
		route   sim.MixList
		dest    sim.MixID
		wantErr bool
		invalid bool
	}{
		{"valid", sim.MustMixList(0, 1, 3), 3, false, false},
		{"wrong exit", sim.MustMixList(0, 1, 2), 3, true, true},
		{"loop", sim.MustMixList(0, 1, 0, 3), 3, true, false},
		{"unknown mix", sim.MustMixList(0, 9, 3), 3, true, false},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &ClientState{ID: sim.Pseudonym(tc.name), Route: tc.route}
			_, err := e.AssignRoute(&sim.Message{ID: string(rune('0' + i)), Destination: tc.dest}, client)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.invalid, errors.Is(err, sim.ErrInvalidDestination))
		})
	}
}

func TestSourceRouting_BuildsRouteAndCachesPerSession(t *testing.T) {
	e := newTestEngine(t, Config{Mode: sim.SourceRouting, PathLength: 3}, 6)
	client := &ClientState{ID: "carol"}

	// WHEN two messages of the same session are routed
	r1, err := e.AssignRoute(&sim.Message{Session: "s1", Destination: 4}, client)
	require.NoError(t, err)
	r2, err := e.AssignRoute(&sim.Message{Session: "s1", Destination: 4}, client)
	require.NoError(t, err)

	// THEN the session keeps one loop-free route of the configured length ending at 4
	assert.True(t, r1.Equal(r2))
	assert.Equal(t, 3, r1.Len())
	assert.Equal(t, sim.MixID(4), r1.Exit())
	assert.False(t, r1.HasLoop())
}

func TestNextHop_ReplyPassesEntryMixBeforeRouteEnd(t *testing.T) {
	// GIVEN a reply retracing the revisiting path 0 1 0 1 2, so its route meets
	// its destination (the original entry mix 0) before the last hop
	e := newTestEngine(t, Config{Mode: sim.DynamicRouting, PathLength: 5}, 3)
	msg := &sim.Message{Kind: sim.KindReply, Destination: 0, Route: sim.MustMixList(2, 1, 0, 1, 0)}

	// WHEN it is walked from the exit mix
	var path []sim.MixID
	current := msg.Route.Entry()
	for hops := 0; current != sim.NoHop && hops < 10; hops++ {
		msg.HopIndex = len(path)
		path = append(path, current)
		current = e.NextHop(msg, current)
	}

	// THEN it follows the whole route instead of stopping at the first visit to mix 0
	assert.Equal(t, []sim.MixID{2, 1, 0, 1, 0}, path)
}

func TestDynamicRouting_HandsOffAfterPathLength(t *testing.T) {
	// GIVEN dynamic routing with path length 3 over 5 mixes
	e := newTestEngine(t, Config{Mode: sim.DynamicRouting, PathLength: 3}, 5)
	msg := &sim.Message{ID: "d1", Destination: 4}

	// WHEN the entry is assigned and the message is walked hop by hop
	route, err := e.AssignRoute(msg, &ClientState{ID: "dave"})
	require.NoError(t, err)
	require.Equal(t, 1, route.Len())
	current := route.Entry()
	assert.NotEqual(t, sim.MixID(4), current)

	var path []sim.MixID
	for hops := 0; current != sim.NoHop && hops < 10; hops++ {
		msg.Visited = append(msg.Visited, current)
		path = append(path, current)
		current = e.NextHop(msg, current)
	}

	// THEN the message visits exactly 3 mixes, distinct, ending at the destination
	require.Len(t, path, 3)
	assert.Equal(t, sim.MixID(4), path[2])
	assert.NotEqual(t, path[0], path[1])
}

func TestDynamicRouting_UnknownDestination(t *testing.T) {
	e := newTestEngine(t, Config{Mode: sim.DynamicRouting}, 3)
	_, err := e.AssignRoute(&sim.Message{Destination: 9}, &ClientState{ID: "x"})
	assert.True(t, errors.Is(err, sim.ErrInvalidDestination))
}

func TestEngine_ReplyRouteReversesVisited(t *testing.T) {
	e := newTestEngine(t, Config{Mode: sim.DynamicRouting}, 3)
	req := &sim.Message{ID: "r", Visited: []sim.MixID{2, 0, 1}}
	route, err := e.ReplyRoute(req)
	require.NoError(t, err)
	assert.True(t, route.Equal(sim.MustMixList(1, 0, 2)))

	_, err = e.ReplyRoute(&sim.Message{ID: "empty"})
	assert.Error(t, err)
}

func TestEngine_TracesDecisions(t *testing.T) {
	e, err := NewEngine(Config{Mode: sim.GlobalRouting, Cascades: []sim.MixList{sim.MustMixList(0, 1)}}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	e.InfoService().Register("a")
	e.InfoService().Register("b")
	st := trace.New(trace.LevelDecisions)
	clock := sim.NewScheduler(0)
	e.SetTrace(st, clock)
	require.NoError(t, e.Initialize())

	msg := &sim.Message{ID: "t1", Destination: 1}
	route, err := e.AssignRoute(msg, &ClientState{ID: "eve"})
	require.NoError(t, err)
	msg.Route = route
	e.NextHop(msg, 0)
	msg.HopIndex = 1
	e.NextHop(msg, 1)
	_, _ = e.AssignRoute(&sim.Message{ID: "t2", Destination: 0}, &ClientState{ID: "eve"})

	sum := trace.Summarize(st)
	assert.Equal(t, 2, sum.Assignments)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 2, sum.Hops)
	assert.Equal(t, 1, sum.Deliveries)
}
