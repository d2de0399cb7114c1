package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inference-sim/mixnet-sim/sim"
)

func TestInfoService_AssignsSequentialIDs(t *testing.T) {
	// GIVEN a fresh info service
	s := NewInfoService()

	// WHEN three distinct addresses connect
	ids := []sim.MixID{s.Register("a:1"), s.Register("b:1"), s.Register("c:1")}

	// THEN they receive 0, 1, 2 in connection order
	assert.Equal(t, []sim.MixID{0, 1, 2}, ids)
	assert.Equal(t, []sim.MixID{0, 1, 2}, s.Known())
}

func TestInfoService_ReconnectKeepsID(t *testing.T) {
	s := NewInfoService()
	s.Register("a:1")
	b := s.Register("b:1")

	// WHEN b disconnects and a new node joins before b reconnects
	s.Deregister(b)
	assert.False(t, s.IsKnown(b))
	c := s.Register("c:1")
	again := s.Register("b:1")

	// THEN b gets its old id back and ids are never reused
	assert.Equal(t, b, again)
	assert.Equal(t, sim.MixID(2), c)
	assert.Equal(t, 3, s.Assigned())
	addr, ok := s.Lookup(b)
	assert.True(t, ok)
	assert.Equal(t, "b:1", addr)
}
