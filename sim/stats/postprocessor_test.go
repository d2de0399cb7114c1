package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/mixnet-sim/sim"
)

func TestNone_IsIdentity(t *testing.T) {
	rs := sampleResultSet("r")
	s, ok := rs.Lookup(EndToEndLatency, Global)
	require.True(t, ok)

	pts := rs.Query(EndToEndLatency, Global, None{})
	require.Len(t, pts, len(s.Samples))
	for i, p := range pts {
		assert.Equal(t, s.Samples[i].Value, p.Value)
		assert.Equal(t, s.Samples[i].Time-rs.Start, p.Time)
	}
	assert.Equal(t, 42.0, None{}.Process(42, rs, s, rs.RunID))
	assert.Equal(t, "us", None{}.Unit(EndToEndLatency.Unit()))
}

func TestPerSecond_BucketsByElapsedTime(t *testing.T) {
	// GIVEN samples at 0.2s, 0.9s and 1.1s
	rs := sampleResultSet("r")
	pp, err := NewPostProcessor("per-second")
	require.NoError(t, err)

	// WHEN querying a count series per second
	pts := rs.Query(MessagesSent, ClientEntity("alice"), pp)

	// THEN two buckets: 2 messages in [0,1) and 1 in [1,2)
	assert.Equal(t, []Point{{Time: 0, Value: 2}, {Time: sim.TicksPerSecond, Value: 1}}, pts)

	// AND observations are averaged per bucket
	lat := rs.Query(EndToEndLatency, Global, pp)
	assert.Equal(t, []Point{{Time: 0, Value: 150}, {Time: sim.TicksPerSecond, Value: 300}}, lat)

	assert.Equal(t, "events/s", pp.Unit(MessagesSent.Unit()))
}

func TestWindow_EmptyBucketsOmitted(t *testing.T) {
	r := NewRecorder()
	r.Count(MessagesSent, Global, sim.Seconds(0.5))
	r.Count(MessagesSent, Global, sim.Seconds(3.5))
	rs := r.Finalize("gap", 1, 0, sim.Seconds(4))

	pts := rs.Query(MessagesSent, Global, Window{Label: "s", Width: sim.TicksPerSecond})

	assert.Equal(t, []Point{{Time: 0, Value: 1}, {Time: 3 * sim.TicksPerSecond, Value: 1}}, pts)
}

func TestWindow_ProcessIsRatePerWindow(t *testing.T) {
	rs := sampleResultSet("r") // 2 seconds long
	v, ok := rs.Value(MessagesSent, ClientEntity("alice"), Window{Label: "s", Width: sim.TicksPerSecond})
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
}

func TestWindow_BucketsFromRunStart(t *testing.T) {
	r := NewRecorder()
	r.Count(MessagesSent, Global, sim.Seconds(10.4))
	r.Count(MessagesSent, Global, sim.Seconds(11.2))
	rs := r.Finalize("offset", 1, sim.Seconds(10), sim.Seconds(12))

	pts := rs.Query(MessagesSent, Global, Window{Label: "s", Width: sim.TicksPerSecond})
	assert.Equal(t, []Point{{Time: 0, Value: 1}, {Time: sim.TicksPerSecond, Value: 1}}, pts)
}

func TestSort_OrdersByValue(t *testing.T) {
	r := NewRecorder()
	for i, v := range []float64{5, 1, 3} {
		r.Record(QueueDelay, Global, int64(i), v)
	}
	rs := r.Finalize("s", 1, 0, 10)

	pts := rs.Query(QueueDelay, Global, Sorted{})
	assert.Equal(t, []Point{{Time: 1, Value: 1}, {Time: 2, Value: 3}, {Time: 0, Value: 5}}, pts)
}

func TestPerClient_DividesByEntityCount(t *testing.T) {
	rs := sampleResultSet("r") // two clients
	pp, err := NewPostProcessor("per-client")
	require.NoError(t, err)

	v, ok := rs.Value(MessagesSent, Global, pp)
	assert.False(t, ok, "no global series recorded")

	v, ok = rs.Value(MessagesSent, ClientEntity("alice"), pp)
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, "events/client", pp.Unit("events"))
}

func TestNewPostProcessor_Unknown(t *testing.T) {
	_, err := NewPostProcessor("per-fortnight")
	assert.Error(t, err)
	for name := range ValidPostProcessors {
		_, err := NewPostProcessor(name)
		assert.NoError(t, err, name)
	}
}
