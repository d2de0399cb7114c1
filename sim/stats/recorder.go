package stats

import (
	"sort"
)

type seriesKey struct {
	metric Metric
	entity Entity
}

// Recorder collects samples during one replication. It is the only writer of
// ResultSets: Finalize freezes the recorded data into a ResultSet.
//
// Thread-safety: NOT thread-safe. Owned by one replication.
type Recorder struct {
	series    map[seriesKey][]Sample
	meta      map[string]string
	finalized bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		series: make(map[seriesKey][]Sample),
		meta:   make(map[string]string),
	}
}

// Record appends one sample. Samples must arrive in non-decreasing time order,
// which holds for callers driven by the event scheduler.
func (r *Recorder) Record(metric Metric, entity Entity, t int64, value float64) {
	if r.finalized {
		panic("Recorder.Record called after Finalize")
	}
	k := seriesKey{metric: metric, entity: entity}
	r.series[k] = append(r.series[k], Sample{Time: t, Value: value})
}

// Count records an occurrence of metric with value 1.
func (r *Recorder) Count(metric Metric, entity Entity, t int64) {
	r.Record(metric, entity, t, 1)
}

// SetMeta attaches run metadata such as the routing mode or filter chain.
func (r *Recorder) SetMeta(key, value string) {
	r.meta[key] = value
}

// Len returns the number of samples recorded for one series.
func (r *Recorder) Len(metric Metric, entity Entity) int {
	return len(r.series[seriesKey{metric: metric, entity: entity}])
}

// Finalize freezes the recorder into an immutable ResultSet covering
// [start, end] of virtual time. Series are ordered by metric, then entity.
func (r *Recorder) Finalize(runID string, seed int64, start, end int64) *ResultSet {
	if r.finalized {
		panic("Recorder.Finalize called twice")
	}
	r.finalized = true
	rs := &ResultSet{
		RunID:    runID,
		Seed:     seed,
		Start:    start,
		End:      end,
		Series:   make([]Series, 0, len(r.series)),
		Metadata: make(map[string]string, len(r.meta)),
	}
	for k, samples := range r.series {
		rs.Series = append(rs.Series, Series{Metric: k.metric, Entity: k.entity, Samples: samples})
	}
	sort.Slice(rs.Series, func(i, j int) bool {
		a, b := rs.Series[i], rs.Series[j]
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		return a.Entity.Less(b.Entity)
	})
	for k, v := range r.meta {
		rs.Metadata[k] = v
	}
	rs.reindex()
	return rs
}
