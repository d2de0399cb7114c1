package stats

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Series is the ordered samples of one metric for one entity.
type Series struct {
	Metric  Metric   `cbor:"1,keyasint"`
	Entity  Entity   `cbor:"2,keyasint"`
	Samples []Sample `cbor:"3,keyasint"`
}

// Total returns the sum of all sample values.
func (s *Series) Total() float64 {
	total := 0.0
	for _, x := range s.Samples {
		total += x.Value
	}
	return total
}

// Mean returns the average sample value, or 0 for an empty series.
func (s *Series) Mean() float64 {
	if len(s.Samples) == 0 {
		return 0
	}
	return s.Total() / float64(len(s.Samples))
}

// Aggregate returns the mean for observation metrics and the total for counts.
func (s *Series) Aggregate() float64 {
	if s.Metric.IsObservation() {
		return s.Mean()
	}
	return s.Total()
}

// Values returns the sample values in time order.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.Samples))
	for i, x := range s.Samples {
		out[i] = x.Value
	}
	return out
}

// ResultSet is the immutable outcome of one replication. It is produced only
// by Recorder.Finalize or decoded from its binary form.
type ResultSet struct {
	RunID    string            `cbor:"1,keyasint"`
	Seed     int64             `cbor:"2,keyasint"`
	Start    int64             `cbor:"3,keyasint"`
	End      int64             `cbor:"4,keyasint"`
	Series   []Series          `cbor:"5,keyasint"`
	Metadata map[string]string `cbor:"6,keyasint,omitempty"`

	index map[seriesKey]int
}

// Point is one value of a post-processed series. Time is the elapsed virtual
// time from the start of the run (bucket start for windowed series).
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// resultSetWire has ResultSet's fields without its marshaling methods.
type resultSetWire ResultSet

var canonical cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("stats: building canonical CBOR mode: %v", err))
	}
	canonical = em
}

func (rs *ResultSet) reindex() {
	rs.index = make(map[seriesKey]int, len(rs.Series))
	for i, s := range rs.Series {
		rs.index[seriesKey{metric: s.Metric, entity: s.Entity}] = i
	}
}

// Duration returns the covered span of virtual time.
func (rs *ResultSet) Duration() int64 { return rs.End - rs.Start }

// Lookup returns the series of metric for entity. It never modifies rs; sets
// built by hand rather than by a Recorder or decoder are scanned linearly.
func (rs *ResultSet) Lookup(metric Metric, entity Entity) (*Series, bool) {
	if rs.index == nil {
		for i := range rs.Series {
			if rs.Series[i].Metric == metric && rs.Series[i].Entity == entity {
				return &rs.Series[i], true
			}
		}
		return nil, false
	}
	i, ok := rs.index[seriesKey{metric: metric, entity: entity}]
	if !ok {
		return nil, false
	}
	return &rs.Series[i], true
}

// Query returns the post-processed points of metric for entity. A missing
// series yields no points. A nil pp is NONE.
func (rs *ResultSet) Query(metric Metric, entity Entity, pp PostProcessor) []Point {
	s, ok := rs.Lookup(metric, entity)
	if !ok {
		return nil
	}
	if pp == nil {
		pp = None{}
	}
	return pp.Apply(rs, s)
}

// Value returns the post-processed aggregate of metric for entity.
func (rs *ResultSet) Value(metric Metric, entity Entity, pp PostProcessor) (float64, bool) {
	s, ok := rs.Lookup(metric, entity)
	if !ok {
		return 0, false
	}
	if pp == nil {
		pp = None{}
	}
	return pp.Process(s.Aggregate(), rs, s, rs.RunID), true
}

// Metrics returns the recorded metric names in ascending order.
func (rs *ResultSet) Metrics() []Metric {
	seen := make(map[Metric]bool)
	var out []Metric
	for _, s := range rs.Series {
		if !seen[s.Metric] {
			seen[s.Metric] = true
			out = append(out, s.Metric)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entities returns the entities of kind that own at least one series.
func (rs *ResultSet) Entities(kind EntityKind) []Entity {
	seen := make(map[Entity]bool)
	var out []Entity
	for _, s := range rs.Series {
		if s.Entity.Kind == kind && !seen[s.Entity] {
			seen[s.Entity] = true
			out = append(out, s.Entity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// EntityCount returns the number of distinct entities of kind.
func (rs *ResultSet) EntityCount(kind EntityKind) int {
	return len(rs.Entities(kind))
}

// MarshalBinary encodes the ResultSet as canonical CBOR. Two ResultSets with
// equal content always encode to identical bytes.
func (rs *ResultSet) MarshalBinary() ([]byte, error) {
	return canonical.Marshal((*resultSetWire)(rs))
}

// UnmarshalBinary decodes a ResultSet produced by MarshalBinary.
func (rs *ResultSet) UnmarshalBinary(data []byte) error {
	var p resultSetWire
	if err := cbor.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding result set: %w", err)
	}
	*rs = ResultSet(p)
	rs.reindex()
	return nil
}
