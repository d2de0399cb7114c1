// Package mix implements the per-node message pipeline: bounded unprocessed
// queues, the output strategy that decides when messages leave, the recoder
// applied on release, and the processed queues drained by the transport.
package mix

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
)

// Direction selects one of the two independent lanes of a pipeline.
type Direction int

const (
	Requests Direction = iota
	Replies
)

// Directions lists both lanes in a fixed order.
var Directions = []Direction{Requests, Replies}

func (d Direction) String() string {
	if d == Replies {
		return "reply"
	}
	return "request"
}

// DirectionOf returns the lane a message travels on.
func DirectionOf(msg *sim.Message) Direction {
	if msg.IsReply() {
		return Replies
	}
	return Requests
}

// DummyFactory creates one cover message for lane dir at time now.
// The pipeline fills in payload size, Dummy flag and stage.
type DummyFactory func(dir Direction, now int64) *sim.Message

type lane struct {
	capacity    int
	unprocessed []*sim.Message
	processed   []*sim.Message
}

// PipelineConfig holds the static parameters of one mix pipeline.
type PipelineConfig struct {
	Mix            sim.MixID
	Capacity       int // per-lane unprocessed capacity
	MaxMessageSize int // payload size of dummies
}

// Pipeline is the message pipeline of one mix.
//
// Invariant: for each lane, remaining capacity + unprocessed length == capacity.
// Listeners run synchronously inside the event that caused the change.
//
// Thread-safety: NOT thread-safe. Driven by the replication's scheduler.
type Pipeline struct {
	cfg       PipelineConfig
	strategy  Strategy
	recoder   Recoder
	sched     *sim.Scheduler
	lanes     [2]*lane
	dummies   DummyFactory
	dummySeq  int64
	processed []func(Direction)
	capacity  []func(Direction)
	started   bool
}

// NewPipeline creates a pipeline for one mix. Capacity must be positive.
func NewPipeline(cfg PipelineConfig, strategy Strategy, recoder Recoder, sched *sim.Scheduler) (*Pipeline, error) {
	if cfg.Capacity <= 0 {
		return nil, &sim.ConfigurationError{Key: "QUEUE_CAPACITY", Value: fmt.Sprint(cfg.Capacity), Err: fmt.Errorf("must be > 0")}
	}
	if err := strategy.Validate(cfg.Capacity); err != nil {
		return nil, err
	}
	if recoder == nil {
		recoder = IdentityRecoder{}
	}
	p := &Pipeline{
		cfg:      cfg,
		strategy: strategy,
		recoder:  recoder,
		sched:    sched,
	}
	for i := range p.lanes {
		p.lanes[i] = &lane{capacity: cfg.Capacity}
	}
	p.dummies = p.localDummy
	return p, nil
}

// Mix returns the id of the mix owning the pipeline.
func (p *Pipeline) Mix() sim.MixID { return p.cfg.Mix }

// Strategy returns the output strategy.
func (p *Pipeline) Strategy() Strategy { return p.strategy }

// Capacity returns the per-lane unprocessed capacity.
func (p *Pipeline) Capacity() int { return p.cfg.Capacity }

// SetDummyFactory replaces the default cover message factory, which addresses
// dummies to the mix itself so they are dropped on release.
func (p *Pipeline) SetDummyFactory(f DummyFactory) {
	if f != nil {
		p.dummies = f
	}
}

// OnProcessed registers fn to run whenever messages reach a processed queue.
func (p *Pipeline) OnProcessed(fn func(Direction)) {
	p.processed = append(p.processed, fn)
}

// OnCapacity registers fn to run whenever unprocessed capacity is freed.
func (p *Pipeline) OnCapacity(fn func(Direction)) {
	p.capacity = append(p.capacity, fn)
}

// Start lets the strategy arm its timers. Called once after listeners are wired.
func (p *Pipeline) Start() error {
	if p.started {
		return fmt.Errorf("pipeline of mix %d already started", p.cfg.Mix)
	}
	p.started = true
	return p.strategy.Start(p)
}

// Add enqueues msg on lane dir. Returns sim.ErrCapacityExceeded when full.
func (p *Pipeline) Add(dir Direction, msg *sim.Message) error {
	l := p.lanes[dir]
	if len(l.unprocessed) >= l.capacity {
		return fmt.Errorf("mix %d %s lane (%d/%d): %w", p.cfg.Mix, dir, len(l.unprocessed), l.capacity, sim.ErrCapacityExceeded)
	}
	msg.Stage = sim.StageUnprocessed
	msg.EnqueuedAt = p.now()
	l.unprocessed = append(l.unprocessed, msg)
	p.strategy.Arrived(p, dir)
	return nil
}

// AddUnprocessedRequest enqueues an incoming request.
func (p *Pipeline) AddUnprocessedRequest(msg *sim.Message) error { return p.Add(Requests, msg) }

// AddUnprocessedReply enqueues an incoming reply.
func (p *Pipeline) AddUnprocessedReply(msg *sim.Message) error { return p.Add(Replies, msg) }

// Remaining returns the free unprocessed slots of lane dir.
func (p *Pipeline) Remaining(dir Direction) int {
	l := p.lanes[dir]
	return l.capacity - len(l.unprocessed)
}

// RemainingUnprocessedRequestCapacity returns the free request slots.
func (p *Pipeline) RemainingUnprocessedRequestCapacity() int { return p.Remaining(Requests) }

// RemainingUnprocessedReplyCapacity returns the free reply slots.
func (p *Pipeline) RemainingUnprocessedReplyCapacity() int { return p.Remaining(Replies) }

// UnprocessedLen returns the number of messages held on lane dir.
func (p *Pipeline) UnprocessedLen(dir Direction) int { return len(p.lanes[dir].unprocessed) }

// ProcessedLen returns the number of messages ready to send on lane dir.
func (p *Pipeline) ProcessedLen(dir Direction) int { return len(p.lanes[dir].processed) }

// QueueLength returns all messages held by the mix on both lanes.
func (p *Pipeline) QueueLength() int {
	n := 0
	for _, l := range p.lanes {
		n += len(l.unprocessed) + len(l.processed)
	}
	return n
}

// Get removes and returns the head of the processed queue of lane dir.
func (p *Pipeline) Get(dir Direction) (*sim.Message, error) {
	l := p.lanes[dir]
	if len(l.processed) == 0 {
		return nil, sim.ErrNoMessageReady
	}
	msg := l.processed[0]
	l.processed[0] = nil
	l.processed = l.processed[1:]
	return msg, nil
}

// Peek returns the head of the processed queue of lane dir without removing it.
func (p *Pipeline) Peek(dir Direction) (*sim.Message, error) {
	l := p.lanes[dir]
	if len(l.processed) == 0 {
		return nil, sim.ErrNoMessageReady
	}
	return l.processed[0], nil
}

// GetProcessedRequest removes the next request ready to send.
func (p *Pipeline) GetProcessedRequest() (*sim.Message, error) { return p.Get(Requests) }

// GetProcessedReply removes the next reply ready to send.
func (p *Pipeline) GetProcessedReply() (*sim.Message, error) { return p.Get(Replies) }

// PeekProcessedRequest returns the next request ready to send.
func (p *Pipeline) PeekProcessedRequest() (*sim.Message, error) { return p.Peek(Requests) }

// PeekProcessedReply returns the next reply ready to send.
func (p *Pipeline) PeekProcessedReply() (*sim.Message, error) { return p.Peek(Replies) }

// MaxSizeOfNext returns the payload size of the next processed message on lane
// dir, or 0 when nothing is ready.
func (p *Pipeline) MaxSizeOfNext(dir Direction) int {
	msg, err := p.Peek(dir)
	if err != nil {
		return 0
	}
	return msg.Size()
}

// GetMaxSizeOfNextRequest returns the size of the next processed request.
func (p *Pipeline) GetMaxSizeOfNextRequest() int { return p.MaxSizeOfNext(Requests) }

// GetMaxSizeOfNextReply returns the size of the next processed reply.
func (p *Pipeline) GetMaxSizeOfNextReply() int { return p.MaxSizeOfNext(Replies) }

// --- strategy helpers ---

// unprocessed returns the messages held on lane dir, oldest first.
// Callers must not retain the slice across releases.
func (p *Pipeline) unprocessed(dir Direction) []*sim.Message {
	return p.lanes[dir].unprocessed
}

// markBatching moves every held message that is still unprocessed into the batching stage.
func (p *Pipeline) markBatching(dir Direction) {
	for _, m := range p.lanes[dir].unprocessed {
		if m.Stage == sim.StageUnprocessed {
			m.Stage = sim.StageBatching
		}
	}
}

// take removes up to n of the oldest held messages from lane dir (all if n <= 0).
func (p *Pipeline) take(dir Direction, n int) []*sim.Message {
	l := p.lanes[dir]
	if n <= 0 || n > len(l.unprocessed) {
		n = len(l.unprocessed)
	}
	out := make([]*sim.Message, n)
	copy(out, l.unprocessed[:n])
	rest := make([]*sim.Message, len(l.unprocessed)-n, l.capacity)
	copy(rest, l.unprocessed[n:])
	l.unprocessed = rest
	return out
}

// remove takes one specific held message out of lane dir.
func (p *Pipeline) remove(dir Direction, msg *sim.Message) bool {
	l := p.lanes[dir]
	for i, m := range l.unprocessed {
		if m == msg {
			l.unprocessed = append(l.unprocessed[:i], l.unprocessed[i+1:]...)
			return true
		}
	}
	return false
}

// dummy creates one cover message for lane dir.
func (p *Pipeline) dummy(dir Direction) *sim.Message {
	now := p.now()
	msg := p.dummies(dir, now)
	p.dummySeq++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("dummy-%d-%d", p.cfg.Mix, p.dummySeq)
	}
	msg.Dummy = true
	msg.Payload = make([]byte, p.cfg.MaxMessageSize)
	msg.CreatedAt = now
	msg.EnqueuedAt = now
	msg.Stage = sim.StageBatching
	return msg
}

func (p *Pipeline) localDummy(dir Direction, _ int64) *sim.Message {
	kind := sim.KindRequest
	if dir == Replies {
		kind = sim.KindReply
	}
	return &sim.Message{
		Kind:        kind,
		Destination: p.cfg.Mix,
		Route:       sim.MustMixList(p.cfg.Mix),
		NextHop:     sim.NoHop,
	}
}

// release recodes msgs, appends them to the processed queue of lane dir and
// notifies listeners. Every message in one call shares the same timestamp.
// freed reports whether the messages came out of the unprocessed queue.
func (p *Pipeline) release(dir Direction, msgs []*sim.Message, freed bool) {
	if len(msgs) == 0 {
		return
	}
	now := p.now()
	l := p.lanes[dir]
	for _, m := range msgs {
		p.recoder.Recode(m, p.cfg.Mix)
		m.Stage = sim.StageProcessed
		m.ProcessedAt = now
		l.processed = append(l.processed, m)
	}
	logrus.Debugf("[tick %07d] mix %d released %d %s(s)", now, p.cfg.Mix, len(msgs), dir)
	for _, fn := range p.processed {
		fn(dir)
	}
	if freed {
		for _, fn := range p.capacity {
			fn(dir)
		}
	}
}

func (p *Pipeline) now() int64 {
	if p.sched == nil {
		return 0
	}
	return p.sched.Now()
}
