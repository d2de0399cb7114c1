package stats

import (
	"math"
	"sort"
)

// Distribution summarizes a sample: moments, extremes and tail quantiles.
type Distribution struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"` // sample standard deviation, 0 for one value
	Min    float64 `json:"min"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Max    float64 `json:"max"`
}

// NewDistribution summarizes values, which it does not modify.
// An empty sample yields the zero Distribution.
func NewDistribution(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	// Welford keeps the variance stable for large latency values
	var mean, m2 float64
	for i, v := range sorted {
		d := v - mean
		mean += d / float64(i+1)
		m2 += d * (v - mean)
	}
	d := Distribution{
		Count: n,
		Mean:  mean,
		Min:   sorted[0],
		Max:   sorted[n-1],
		P50:   quantile(sorted, 0.50),
		P95:   quantile(sorted, 0.95),
		P99:   quantile(sorted, 0.99),
	}
	if n > 1 {
		d.StdDev = math.Sqrt(m2 / float64(n-1))
	}
	return d
}

// quantile interpolates linearly between the closest ranks of a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-float64(i))*(sorted[i+1]-sorted[i])
}

// Summarize computes the cross-replication distribution of one series'
// aggregate (mean for observations, total for counts) processed by pp.
// Runs without the series are skipped. Callers pass only fully drained runs.
func Summarize(results []*ResultSet, metric Metric, entity Entity, pp PostProcessor) Distribution {
	if pp == nil {
		pp = None{}
	}
	values := make([]float64, 0, len(results))
	for _, rs := range results {
		if rs == nil {
			continue
		}
		if v, ok := rs.Value(metric, entity, pp); ok {
			values = append(values, v)
		}
	}
	return NewDistribution(values)
}

// Pooled computes the distribution of every raw sample of one series across runs.
func Pooled(results []*ResultSet, metric Metric, entity Entity) Distribution {
	var values []float64
	for _, rs := range results {
		if rs == nil {
			continue
		}
		if s, ok := rs.Lookup(metric, entity); ok {
			values = append(values, s.Values()...)
		}
	}
	return NewDistribution(values)
}
