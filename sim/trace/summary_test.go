package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_Empty(t *testing.T) {
	for _, l := range []*Log{nil, New(LevelDecisions)} {
		s := Summarize(l)
		assert.Zero(t, s.Assignments)
		assert.Zero(t, s.Hops)
		assert.Zero(t, s.MeanHops)
		assert.NotNil(t, s.NextMixes)
		assert.NotNil(t, s.Rejections)
	}
}

func TestSummarize_CountsDecisions(t *testing.T) {
	// GIVEN one routed message, one rejection and a stray hop of a third message
	l := New(LevelDecisions)
	l.RecordAssignment(AssignmentRecord{MessageID: "m1", Accepted: true})
	l.RecordAssignment(AssignmentRecord{MessageID: "m2", Reason: "invalid destination"})
	l.RecordAssignment(AssignmentRecord{MessageID: "m4", Reason: "invalid destination"})
	l.RecordHop(HopRecord{MessageID: "m1", AtMix: 0, NextMix: 1})
	l.RecordHop(HopRecord{MessageID: "m1", AtMix: 1, NextMix: 2})
	l.RecordHop(HopRecord{MessageID: "m1", AtMix: 2, NextMix: LocalDelivery})
	l.RecordHop(HopRecord{MessageID: "m3", AtMix: 0, NextMix: 2})

	// WHEN summarized
	s := Summarize(l)

	// THEN
	assert.Equal(t, 3, s.Assignments)
	assert.Equal(t, 1, s.Accepted)
	assert.Equal(t, 2, s.Rejected)
	assert.Equal(t, map[string]int{"invalid destination": 2}, s.Rejections)
	assert.Equal(t, 4, s.Hops)
	assert.Equal(t, 1, s.Deliveries)
	assert.Equal(t, map[int]int{1: 1, 2: 2}, s.NextMixes)
	assert.Equal(t, 3, s.MaxHops)
	assert.Equal(t, 2.0, s.MeanHops)
}
