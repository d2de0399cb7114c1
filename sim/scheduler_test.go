package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_EqualTimestampsFireFIFO(t *testing.T) {
	// GIVEN three events scheduled for the same tick
	s := NewScheduler(0)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.ScheduleAt(10, func(int64) { order = append(order, name) })
	}
	s.ScheduleAt(5, func(int64) { order = append(order, "early") })

	// WHEN the scheduler drains
	err := s.Run(context.Background())

	// THEN earlier ticks fire first and ties fire in insertion order
	assert.NoError(t, err)
	assert.Equal(t, []string{"early", "a", "b", "c"}, order)
	assert.Equal(t, int64(10), s.Now())
	assert.Equal(t, int64(4), s.Executed())
}

func TestScheduler_CancelledEventNeverFires(t *testing.T) {
	s := NewScheduler(0)
	fired := false
	h := s.ScheduleAt(3, func(int64) { fired = true })
	h.Cancel()

	assert.NoError(t, s.Run(context.Background()))
	assert.False(t, fired)
	assert.True(t, h.Cancelled())
	assert.False(t, h.Fired())
}

func TestScheduler_CancelAfterFireIsNoop(t *testing.T) {
	s := NewScheduler(0)
	count := 0
	h := s.ScheduleAt(1, func(int64) { count++ })
	assert.NoError(t, s.Run(context.Background()))

	h.Cancel()

	assert.True(t, h.Fired())
	assert.False(t, h.Cancelled())
	assert.Equal(t, 1, count)
}

func TestScheduler_HorizonStopsLaterEvents(t *testing.T) {
	// GIVEN a horizon of 100 ticks
	s := NewScheduler(100)
	var seen []int64
	for _, ts := range []int64{50, 100, 101, 500} {
		s.ScheduleAt(ts, func(now int64) { seen = append(seen, now) })
	}

	assert.NoError(t, s.Run(context.Background()))

	// THEN only events at or before the horizon execute
	assert.Equal(t, []int64{50, 100}, seen)
	assert.Equal(t, 2, s.Pending())
}

func TestScheduler_CallbacksMayScheduleAndStop(t *testing.T) {
	s := NewScheduler(0)
	ticks := 0
	var tick func(now int64)
	tick = func(now int64) {
		ticks++
		if ticks == 5 {
			s.Stop()
		}
		s.ScheduleAfter(10, tick)
	}
	s.ScheduleAt(0, tick)

	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 5, ticks)
	assert.Equal(t, int64(40), s.Now())
}

func TestScheduler_ContextCancelStopsBetweenEvents(t *testing.T) {
	// GIVEN an event that cancels the run's context
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(0)
	var seen []int64
	s.ScheduleAt(1, func(now int64) { seen = append(seen, now); cancel() })
	s.ScheduleAt(2, func(now int64) { seen = append(seen, now) })

	// WHEN the scheduler runs
	err := s.Run(ctx)

	// THEN the current event completes, the next one stays queued, and ctx.Err is returned
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1}, seen)
	assert.Equal(t, 1, s.Pending())
}

func TestScheduler_PastEventPanics(t *testing.T) {
	s := NewScheduler(0)
	s.ScheduleAt(10, func(int64) {
		assert.Panics(t, func() { s.ScheduleAt(5, func(int64) {}) })
	})
	assert.NoError(t, s.Run(context.Background()))
}

func TestTickConversions(t *testing.T) {
	assert.Equal(t, int64(1_500_000), Seconds(1.5))
	assert.Equal(t, int64(250_000), Millis(250))
}
