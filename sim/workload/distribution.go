package workload

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// SizeSampler draws message payload sizes in bytes.
type SizeSampler interface {
	// Sample returns a size of at least one byte.
	Sample(rng *rand.Rand) int
}

// SizeFunc adapts a continuous draw to a SizeSampler, rounding to whole bytes.
type SizeFunc func(rng *rand.Rand) float64

func (f SizeFunc) Sample(rng *rand.Rand) int {
	v := math.Round(f(rng))
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// EmpiricalSizes draws from a discrete size histogram by inverse CDF.
type EmpiricalSizes struct {
	sizes []int
	cdf   []float64
}

// NewEmpiricalSizes builds a sampler from size → weight. Weights are normalized
// and non-positive bins are dropped.
func NewEmpiricalSizes(weights map[int]float64) (*EmpiricalSizes, error) {
	sizes := make([]int, 0, len(weights))
	var total float64
	for size, w := range weights {
		if w > 0 {
			sizes = append(sizes, size)
			total += w
		}
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("empirical size histogram has no positive bins")
	}
	sort.Ints(sizes)
	e := &EmpiricalSizes{sizes: sizes, cdf: make([]float64, len(sizes))}
	var acc float64
	for i, size := range sizes {
		acc += weights[size] / total
		e.cdf[i] = acc
	}
	e.cdf[len(e.cdf)-1] = 1
	return e, nil
}

func (e *EmpiricalSizes) Sample(rng *rand.Rand) int {
	i := sort.SearchFloat64s(e.cdf, rng.Float64())
	if i >= len(e.sizes) {
		i = len(e.sizes) - 1
	}
	if e.sizes[i] < 1 {
		return 1
	}
	return e.sizes[i]
}

// sizeBuilder names the params a distribution needs and how to build it from them.
type sizeBuilder struct {
	params []string
	build  func(p map[string]float64) (SizeSampler, error)
}

var sizeBuilders = map[string]sizeBuilder{
	"constant": {
		params: []string{"value"},
		build: func(p map[string]float64) (SizeSampler, error) {
			v := p["value"]
			return SizeFunc(func(*rand.Rand) float64 { return v }), nil
		},
	},
	"exponential": {
		params: []string{"mean"},
		build: func(p map[string]float64) (SizeSampler, error) {
			mean := p["mean"]
			return SizeFunc(func(rng *rand.Rand) float64 { return rng.ExpFloat64() * mean }), nil
		},
	},
	"gaussian": {
		params: []string{"mean", "std_dev", "min", "max"},
		build: func(p map[string]float64) (SizeSampler, error) {
			mean, sd, lo, hi := p["mean"], p["std_dev"], p["min"], p["max"]
			if lo > hi {
				return nil, fmt.Errorf("gaussian min %g exceeds max %g", lo, hi)
			}
			return SizeFunc(func(rng *rand.Rand) float64 {
				if lo == hi {
					return lo
				}
				return math.Max(lo, math.Min(hi, mean+sd*rng.NormFloat64()))
			}), nil
		},
	},
	// With probability mix_weight a Pareto(alpha, xm) tail, otherwise LogNormal(mu, sigma).
	"pareto_lognormal": {
		params: []string{"alpha", "xm", "mu", "sigma", "mix_weight"},
		build: func(p map[string]float64) (SizeSampler, error) {
			alpha, xm, mu, sigma, w := p["alpha"], p["xm"], p["mu"], p["sigma"], p["mix_weight"]
			if alpha <= 0 {
				return nil, fmt.Errorf("pareto alpha must be positive, got %g", alpha)
			}
			return SizeFunc(func(rng *rand.Rand) float64 {
				if rng.Float64() < w {
					u := 1 - rng.Float64() // (0, 1]
					return xm * math.Pow(u, -1/alpha)
				}
				return math.Exp(mu + sigma*rng.NormFloat64())
			}), nil
		},
	},
	// Params keys are sizes in bytes, values their weights.
	"empirical": {
		build: func(p map[string]float64) (SizeSampler, error) {
			weights := make(map[int]float64, len(p))
			for k, w := range p {
				size, err := strconv.Atoi(k)
				if err != nil {
					return nil, fmt.Errorf("empirical bin %q is not a byte count", k)
				}
				weights[size] += w
			}
			return NewEmpiricalSizes(weights)
		},
	},
}

// NewSizeSampler creates a SizeSampler from a DistSpec.
func NewSizeSampler(spec DistSpec) (SizeSampler, error) {
	b, ok := sizeBuilders[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
	for _, name := range b.params {
		if _, ok := spec.Params[name]; !ok {
			return nil, fmt.Errorf("%s distribution requires parameter %q", spec.Type, name)
		}
	}
	return b.build(spec.Params)
}
