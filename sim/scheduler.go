package sim

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// TicksPerSecond is the number of virtual ticks in one simulated second.
const TicksPerSecond int64 = 1_000_000

// Seconds converts a duration in seconds to ticks.
func Seconds(s float64) int64 {
	return int64(s * float64(TicksPerSecond))
}

// Millis converts a duration in milliseconds to ticks.
func Millis(ms float64) int64 {
	return int64(ms * float64(TicksPerSecond) / 1000)
}

// Clock is the process-wide virtual time source of one replication.
type Clock interface {
	Now() int64
}

// eventQueue is a min-heap ordered by (timestamp, insertion sequence).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventQueue []*Handle

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	ti, tj := q[i].event.Timestamp(), q[j].event.Timestamp()
	if ti != tj {
		return ti < tj
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(*Handle))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Scheduler holds the virtual clock and the pending event queue of one replication.
// Events with equal timestamps fire in insertion order.
//
// Thread-safety: NOT thread-safe. All methods must be called from the goroutine
// driving Run, including from within event callbacks.
type Scheduler struct {
	clock    int64
	horizon  int64
	queue    eventQueue
	nextSeq  int64
	executed int64
	stopped  bool
	running  bool
}

// NewScheduler creates a Scheduler whose clock starts at zero.
// Events scheduled beyond horizon are never executed; a horizon <= 0 means unbounded.
func NewScheduler(horizon int64) *Scheduler {
	if horizon <= 0 {
		horizon = math.MaxInt64
	}
	s := &Scheduler{
		horizon: horizon,
		queue:   make(eventQueue, 0),
	}
	heap.Init(&s.queue)
	return s
}

// Now returns the current virtual time.
func (s *Scheduler) Now() int64 {
	return s.clock
}

// Horizon returns the last tick at which events may execute.
func (s *Scheduler) Horizon() int64 {
	return s.horizon
}

// Schedule pushes an event into the queue and returns its cancellation handle.
// Panics if the event lies in the past.
func (s *Scheduler) Schedule(ev Event) *Handle {
	if ev.Timestamp() < s.clock {
		panic(fmt.Sprintf("Scheduler.Schedule: event at %d is before now (%d)", ev.Timestamp(), s.clock))
	}
	h := &Handle{event: ev, seq: s.nextSeq}
	s.nextSeq++
	heap.Push(&s.queue, h)
	return h
}

// ScheduleAt schedules fn to run at virtual time ts.
func (s *Scheduler) ScheduleAt(ts int64, fn func(now int64)) *Handle {
	return s.Schedule(&funcEvent{time: ts, fn: fn})
}

// ScheduleAfter schedules fn to run delay ticks from now.
func (s *Scheduler) ScheduleAfter(delay int64, fn func(now int64)) *Handle {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(s.clock+delay, fn)
}

// Stop ends the event loop after the currently executing event returns.
func (s *Scheduler) Stop() {
	s.stopped = true
}

// Pending returns the number of queued events, including cancelled ones not yet popped.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Executed returns the number of events that have fired.
func (s *Scheduler) Executed() int64 {
	return s.executed
}

// Step executes the next live event. It returns false if the queue is empty,
// the next event lies beyond the horizon, or the scheduler was stopped.
func (s *Scheduler) Step() bool {
	for s.queue.Len() > 0 && !s.stopped {
		next := s.queue[0]
		if next.event.Timestamp() > s.horizon {
			return false
		}
		heap.Pop(&s.queue)
		if next.cancelled {
			continue
		}
		ts := next.event.Timestamp()
		if ts < s.clock {
			panic(fmt.Sprintf("Scheduler: clock went backwards: %d < %d", ts, s.clock))
		}
		s.clock = ts
		next.fired = true
		s.executed++
		logrus.Debugf("[tick %07d] Executing %T", s.clock, next.event)
		next.event.Execute(s)
		return true
	}
	return false
}

// Run drains the queue until it is empty, the horizon is reached, Stop is called,
// or ctx is done. The context is only consulted between events, so an event is
// either fully executed or left in the queue untouched.
// Returns ctx.Err() if the context ended the run, nil otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running {
		panic("Scheduler.Run called re-entrantly")
	}
	s.running = true
	defer func() { s.running = false }()

	for {
		if err := ctx.Err(); err != nil {
			logrus.Infof("[tick %07d] Simulation interrupted: %v", s.clock, err)
			return err
		}
		if !s.Step() {
			break
		}
	}
	logrus.Infof("[tick %07d] Simulation ended after %d events", s.clock, s.executed)
	return nil
}
