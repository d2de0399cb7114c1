package mix

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/inference-sim/mixnet-sim/sim"
)

// Strategy decides when held messages leave a mix.
// Arrived is called after a message was appended to lane dir; Start is called
// once before the run so time-driven strategies can arm their timers.
type Strategy interface {
	Name() string
	Validate(capacity int) error
	Start(p *Pipeline) error
	Arrived(p *Pipeline, dir Direction)
}

// StrategyConfig selects and parameterizes an output strategy.
type StrategyConfig struct {
	Name      string
	BatchSize int   // fixed-batch threshold; timed-batch cap and pad target
	Interval  int64 // timed-batch period in ticks
	Pad       bool  // timed-batch: fill each batch to BatchSize with dummies
	MeanDelay int64 // poisson-delay mean in ticks
}

// ValidStrategies is the set of recognized output strategy names.
// Empty string defaults to no-delay.
var ValidStrategies = map[string]bool{"": true, "no-delay": true, "fixed-batch": true, "timed-batch": true, "poisson-delay": true}

// IsValidStrategy returns true if name is a recognized output strategy.
func IsValidStrategy(name string) bool {
	return ValidStrategies[name]
}

// NewStrategy creates an output strategy from cfg.
// Panics on unrecognized names; callers validate configuration first.
func NewStrategy(cfg StrategyConfig, rng *rand.Rand) Strategy {
	if !IsValidStrategy(cfg.Name) {
		panic(fmt.Sprintf("unknown output strategy %q", cfg.Name))
	}
	switch cfg.Name {
	case "", "no-delay":
		return &NoDelay{}
	case "fixed-batch":
		return &FixedBatch{Size: cfg.BatchSize, rng: rng}
	case "timed-batch":
		return &TimedBatch{Interval: cfg.Interval, BatchSize: cfg.BatchSize, Pad: cfg.Pad, rng: rng}
	case "poisson-delay":
		return &PoissonDelay{MeanDelay: cfg.MeanDelay, rng: rng}
	default:
		panic(fmt.Sprintf("unhandled output strategy %q", cfg.Name))
	}
}

// NoDelay forwards every message within the event it arrived in.
type NoDelay struct{}

// Name implements Strategy.
func (*NoDelay) Name() string { return "no-delay" }

// Validate implements Strategy.
func (*NoDelay) Validate(int) error { return nil }

// Start implements Strategy.
func (*NoDelay) Start(*Pipeline) error { return nil }

// Arrived implements Strategy for NoDelay.
func (*NoDelay) Arrived(p *Pipeline, dir Direction) {
	p.release(dir, p.take(dir, 0), true)
}

// FixedBatch holds messages until Size of them are present, then releases the
// whole batch at once in shuffled order.
type FixedBatch struct {
	Size int
	rng  *rand.Rand
}

// Name implements Strategy.
func (*FixedBatch) Name() string { return "fixed-batch" }

// Validate implements Strategy. A batch larger than the queue could never fill.
func (s *FixedBatch) Validate(capacity int) error {
	if s.Size <= 0 {
		return &sim.ConfigurationError{Key: "BATCH_SIZE", Value: fmt.Sprint(s.Size), Err: fmt.Errorf("must be > 0")}
	}
	if s.Size > capacity {
		return &sim.ConfigurationError{Key: "BATCH_SIZE", Value: fmt.Sprint(s.Size), Err: fmt.Errorf("exceeds queue capacity %d", capacity)}
	}
	return nil
}

// Start implements Strategy.
func (*FixedBatch) Start(*Pipeline) error { return nil }

// Arrived implements Strategy for FixedBatch.
func (s *FixedBatch) Arrived(p *Pipeline, dir Direction) {
	p.markBatching(dir)
	for p.UnprocessedLen(dir) >= s.Size {
		batch := p.take(dir, s.Size)
		shuffle(s.rng, batch)
		p.release(dir, batch, true)
	}
}

// TimedBatch releases whatever is held every Interval ticks, counted from the
// start of the run. BatchSize > 0 caps the number released per tick; with Pad
// every tick emits exactly BatchSize messages, topping up with dummies.
// Without Pad the ticker only runs while a lane holds messages, so an idle mix
// leaves no pending events behind.
type TimedBatch struct {
	Interval  int64
	BatchSize int
	Pad       bool
	rng       *rand.Rand
	armed     bool // a tick is scheduled
}

// Name implements Strategy.
func (*TimedBatch) Name() string { return "timed-batch" }

// Validate implements Strategy.
func (s *TimedBatch) Validate(int) error {
	if s.Interval <= 0 {
		return &sim.ConfigurationError{Key: "BATCH_INTERVAL_MS", Value: fmt.Sprint(s.Interval), Err: fmt.Errorf("must be > 0")}
	}
	if s.Pad && s.BatchSize <= 0 {
		return &sim.ConfigurationError{Key: "BATCH_SIZE", Value: fmt.Sprint(s.BatchSize), Err: fmt.Errorf("padding needs a positive batch size")}
	}
	return nil
}

// Start implements Strategy. Padding emits traffic forever, so it needs a
// finite horizon to terminate.
func (s *TimedBatch) Start(p *Pipeline) error {
	if p.sched == nil {
		return fmt.Errorf("timed-batch strategy of mix %d needs a scheduler", p.Mix())
	}
	if s.Pad && p.sched.Horizon() == math.MaxInt64 {
		return &sim.ConfigurationError{Key: "PAD_BATCHES", Value: "true", Err: fmt.Errorf("padding requires a finite horizon")}
	}
	if s.Pad {
		s.arm(p, p.sched.Now())
	}
	return nil
}

// arm schedules the next tick on the first interval boundary after now.
func (s *TimedBatch) arm(p *Pipeline, now int64) {
	next := (now/s.Interval + 1) * s.Interval
	if next > p.sched.Horizon() {
		return
	}
	s.armed = true
	p.sched.ScheduleAt(next, func(t int64) { s.tick(p, t) })
}

func (s *TimedBatch) tick(p *Pipeline, now int64) {
	for _, dir := range Directions {
		batch := p.take(dir, s.BatchSize)
		freed := len(batch) > 0
		if s.Pad {
			for len(batch) < s.BatchSize {
				batch = append(batch, p.dummy(dir))
			}
		}
		shuffle(s.rng, batch)
		p.release(dir, batch, freed)
	}
	s.armed = false
	if s.Pad || p.UnprocessedLen(Requests)+p.UnprocessedLen(Replies) > 0 {
		s.arm(p, now)
	}
}

// Arrived implements Strategy for TimedBatch.
func (s *TimedBatch) Arrived(p *Pipeline, dir Direction) {
	p.markBatching(dir)
	if !s.armed {
		s.arm(p, p.sched.Now())
	}
}

// PoissonDelay holds each message for an independent exponentially distributed
// delay with mean MeanDelay, then releases it on its own.
type PoissonDelay struct {
	MeanDelay int64
	rng       *rand.Rand
}

// Name implements Strategy.
func (*PoissonDelay) Name() string { return "poisson-delay" }

// Validate implements Strategy.
func (s *PoissonDelay) Validate(int) error {
	if s.MeanDelay <= 0 {
		return &sim.ConfigurationError{Key: "MEAN_DELAY_MS", Value: fmt.Sprint(s.MeanDelay), Err: fmt.Errorf("must be > 0")}
	}
	return nil
}

// Start implements Strategy.
func (*PoissonDelay) Start(p *Pipeline) error {
	if p.sched == nil {
		return fmt.Errorf("poisson-delay strategy of mix %d needs a scheduler", p.Mix())
	}
	return nil
}

// Arrived implements Strategy for PoissonDelay.
func (s *PoissonDelay) Arrived(p *Pipeline, dir Direction) {
	for _, msg := range p.unprocessed(dir) {
		if msg.Stage != sim.StageUnprocessed {
			continue
		}
		msg.Stage = sim.StageBatching
		held := msg
		delay := int64(s.rng.ExpFloat64() * float64(s.MeanDelay))
		p.sched.ScheduleAfter(delay, func(int64) {
			if p.remove(dir, held) {
				p.release(dir, []*sim.Message{held}, true)
			}
		})
	}
}

func shuffle(rng *rand.Rand, msgs []*sim.Message) {
	if rng == nil || len(msgs) < 2 {
		return
	}
	rng.Shuffle(len(msgs), func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })
}
