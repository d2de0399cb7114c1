package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/inference-sim/mixnet-sim/sim"
)

// PostProcessor turns a raw series into the view requested by a query.
// Implementations are pure: they never modify the ResultSet or the series.
type PostProcessor interface {
	Name() string
	// Unit derives the output unit from the raw unit of the metric.
	Unit(base string) string
	// Process transforms a raw aggregate of series s in run runID.
	Process(raw float64, rs *ResultSet, s *Series, runID string) float64
	// Apply produces the points of s.
	Apply(rs *ResultSet, s *Series) []Point
}

// ValidPostProcessors is the set of recognized post-processor names.
// Empty string defaults to none.
var ValidPostProcessors = map[string]bool{
	"": true, "none": true, "sort": true,
	"per-second": true, "per-minute": true, "per-hour": true,
	"per-client": true, "per-mix": true,
}

// NewPostProcessor returns the post-processor called name.
func NewPostProcessor(name string) (PostProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None{}, nil
	case "sort":
		return Sorted{}, nil
	case "per-second":
		return Window{Label: "s", Width: sim.TicksPerSecond}, nil
	case "per-minute":
		return Window{Label: "min", Width: 60 * sim.TicksPerSecond}, nil
	case "per-hour":
		return Window{Label: "h", Width: 3600 * sim.TicksPerSecond}, nil
	case "per-client":
		return PerEntity{Kind: KindClient}, nil
	case "per-mix":
		return PerEntity{Kind: KindMix}, nil
	}
	return nil, fmt.Errorf("unknown post-processor %q", name)
}

// None returns samples unchanged, timed from the start of the run.
type None struct{}

func (None) Name() string            { return "none" }
func (None) Unit(base string) string { return base }

// Process implements PostProcessor.
func (None) Process(raw float64, _ *ResultSet, _ *Series, _ string) float64 { return raw }

// Apply implements PostProcessor.
func (None) Apply(rs *ResultSet, s *Series) []Point {
	out := make([]Point, len(s.Samples))
	for i, x := range s.Samples {
		out[i] = Point{Time: x.Time - rs.Start, Value: x.Value}
	}
	return out
}

// Sorted returns samples ordered by ascending value, ties by time.
type Sorted struct{}

func (Sorted) Name() string            { return "sort" }
func (Sorted) Unit(base string) string { return base }

// Process implements PostProcessor.
func (Sorted) Process(raw float64, _ *ResultSet, _ *Series, _ string) float64 { return raw }

// Apply implements PostProcessor.
func (Sorted) Apply(rs *ResultSet, s *Series) []Point {
	out := None{}.Apply(rs, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Window buckets samples by elapsed virtual time since the start of the run.
// Counts are summed per bucket, observations averaged. Buckets without
// samples are omitted.
type Window struct {
	Label string
	Width int64
}

func (w Window) Name() string {
	switch w.Width {
	case sim.TicksPerSecond:
		return "per-second"
	case 60 * sim.TicksPerSecond:
		return "per-minute"
	case 3600 * sim.TicksPerSecond:
		return "per-hour"
	}
	return fmt.Sprintf("per-%d-ticks", w.Width)
}

func (w Window) Unit(base string) string { return base + "/" + w.Label }

// Process implements PostProcessor: a run total becomes a rate per window.
func (w Window) Process(raw float64, rs *ResultSet, _ *Series, _ string) float64 {
	windows := float64(rs.Duration()) / float64(w.Width)
	if windows <= 0 {
		return 0
	}
	return raw / windows
}

// Apply implements PostProcessor.
func (w Window) Apply(rs *ResultSet, s *Series) []Point {
	var out []Point
	var sum float64
	var n int
	bucket := int64(-1)
	flush := func() {
		if n == 0 {
			return
		}
		v := sum
		if s.Metric.IsObservation() {
			v = sum / float64(n)
		}
		out = append(out, Point{Time: bucket * w.Width, Value: v})
	}
	for _, x := range s.Samples {
		b := (x.Time - rs.Start) / w.Width
		if b != bucket {
			flush()
			bucket, sum, n = b, 0, 0
		}
		sum += x.Value
		n++
	}
	flush()
	return out
}

// PerEntity normalizes by the number of entities of Kind in the run.
type PerEntity struct {
	Kind EntityKind
}

func (p PerEntity) Name() string            { return "per-" + string(p.Kind) }
func (p PerEntity) Unit(base string) string { return base + "/" + string(p.Kind) }

// Process implements PostProcessor.
func (p PerEntity) Process(raw float64, rs *ResultSet, _ *Series, _ string) float64 {
	n := rs.EntityCount(p.Kind)
	if n == 0 {
		return 0
	}
	return raw / float64(n)
}

// Apply implements PostProcessor.
func (p PerEntity) Apply(rs *ResultSet, s *Series) []Point {
	out := None{}.Apply(rs, s)
	for i := range out {
		out[i].Value = p.Process(out[i].Value, rs, s, rs.RunID)
	}
	return out
}
