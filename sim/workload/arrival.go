package workload

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
)

// minGammaShape is the smallest shape drawn directly; burstier senders use exponential gaps.
const minGammaShape = 0.01

// SendGaps draws the ticks between two consecutive sends of a client.
type SendGaps struct {
	Process string  // arrival process name
	Mean    float64 // mean gap in ticks
	draw    func(rng *rand.Rand) float64
}

// Next returns the next gap, never less than one tick.
func (g *SendGaps) Next(rng *rand.Rand) int64 {
	v := g.draw(rng)
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	if v > math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(v)
}

// gapBuilders maps an arrival process to the draw function for a mean gap and CV.
var gapBuilders = map[string]func(mean, cv float64) func(*rand.Rand) float64{
	"poisson": func(mean, _ float64) func(*rand.Rand) float64 {
		return func(rng *rand.Rand) float64 { return rng.ExpFloat64() * mean }
	},
	"constant": func(mean, _ float64) func(*rand.Rand) float64 {
		gap := math.Round(mean)
		return func(*rand.Rand) float64 { return gap }
	},
	"gamma": func(mean, cv float64) func(*rand.Rand) float64 {
		shape := 1 / (cv * cv)
		if shape < minGammaShape {
			logrus.Warnf("gamma sender with cv %.2f has shape %.4f; drawing exponential gaps", cv, shape)
			return func(rng *rand.Rand) float64 { return rng.ExpFloat64() * mean }
		}
		scale := mean * cv * cv
		return func(rng *rand.Rand) float64 { return scale * standardGamma(rng, shape) }
	},
	"weibull": func(mean, cv float64) func(*rand.Rand) float64 {
		k := weibullShape(cv)
		lambda := mean / math.Gamma(1+1/k)
		return func(rng *rand.Rand) float64 {
			u := 1 - rng.Float64() // (0, 1]
			return lambda * math.Pow(-math.Log(u), 1/k)
		}
	},
}

// NewSendGaps builds the gap sampler of an arrival process for a client
// sending rate messages per second.
func NewSendGaps(spec ArrivalSpec, rate float64) (*SendGaps, error) {
	build, ok := gapBuilders[spec.Process]
	if !ok {
		return nil, fmt.Errorf("unknown arrival process %q", spec.Process)
	}
	if !(rate > 0) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("send rate must be positive and finite, got %v", rate)
	}
	cv := 1.0
	if spec.CV != nil && *spec.CV > 0 {
		cv = *spec.CV
	}
	mean := float64(sim.TicksPerSecond) / rate
	return &SendGaps{Process: spec.Process, Mean: mean, draw: build(mean, cv)}, nil
}

// standardGamma draws Gamma(shape, 1) with the Marsaglia-Tsang squeeze.
// Shapes below one are boosted to shape+1 and scaled by U^(1/shape).
func standardGamma(rng *rand.Rand, shape float64) float64 {
	boost := 1.0
	if shape < 1 {
		boost = math.Pow(rng.Float64(), 1/shape)
		shape++
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		x2 := x * x
		if u < 1-0.0331*x2*x2 || math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return boost * d * v
		}
	}
}

// weibullShape solves cv(k) = target for the Weibull shape k with bisection
// on log k over [0.1, 100]. cv(k) decreases in k.
func weibullShape(target float64) float64 {
	lo, hi := math.Log(0.1), math.Log(100)
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		if weibullCV(math.Exp(mid)) > target {
			lo = mid
		} else {
			hi = mid
		}
	}
	k := math.Exp((lo + hi) / 2)
	if math.Abs(weibullCV(k)-target) > 1e-3 {
		logrus.Warnf("weibull cv %.3f is outside the reachable range; using shape %.3f", target, k)
	}
	return k
}

// weibullCV is the coefficient of variation of Weibull(k, ·).
func weibullCV(k float64) float64 {
	g1 := math.Gamma(1 + 1/k)
	return math.Sqrt(math.Gamma(1+2/k)/(g1*g1) - 1)
}
