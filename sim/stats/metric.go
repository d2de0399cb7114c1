// Package stats records per-hop and per-client measurements during a run and
// turns them into immutable, queryable ResultSets.
package stats

import (
	"fmt"
	"strings"

	"github.com/inference-sim/mixnet-sim/sim"
)

// Metric names a recorded quantity.
type Metric string

const (
	QueueLength        Metric = "queue_length"        // messages held by a mix at enqueue time
	QueueDelay         Metric = "queue_delay"         // ticks between enqueue and release
	HopLatency         Metric = "hop_latency"         // ticks between leaving one mix and entering the next
	EndToEndLatency    Metric = "end_to_end_latency"  // ticks between injection and delivery
	DeliveredBytes     Metric = "delivered_bytes"     // payload bytes delivered
	RoundTripTime      Metric = "round_trip_time"     // ticks between request injection and reply delivery
	DummyDropped       Metric = "dummy_dropped"       // cover messages discarded at the exit
	BackpressureEvents Metric = "backpressure_events" // messages parked because a lane was full
	MessagesSent       Metric = "messages_sent"       // messages injected by a client or sent by a mix
	RouteFailures      Metric = "route_failures"      // route assignments rejected
)

// ValidMetrics is the set of recognized metric names.
var ValidMetrics = map[Metric]bool{
	QueueLength: true, QueueDelay: true, HopLatency: true, EndToEndLatency: true,
	DeliveredBytes: true, RoundTripTime: true, DummyDropped: true,
	BackpressureEvents: true, MessagesSent: true, RouteFailures: true,
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.TrimSpace(s))
	if !ValidMetrics[m] {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// IsObservation reports whether samples are independent observations
// (latencies, lengths) rather than counts. Observations aggregate by mean,
// counts by sum.
func (m Metric) IsObservation() bool {
	switch m {
	case QueueLength, QueueDelay, HopLatency, EndToEndLatency, RoundTripTime:
		return true
	}
	return false
}

// Unit returns the unit of one raw sample.
func (m Metric) Unit() string {
	switch m {
	case QueueLength:
		return "messages"
	case QueueDelay, HopLatency, EndToEndLatency, RoundTripTime:
		return "us"
	case DeliveredBytes:
		return "bytes"
	}
	return "events"
}

// EntityKind is the kind of object a series belongs to.
type EntityKind string

const (
	KindClient EntityKind = "client"
	KindMix    EntityKind = "mix"
	KindGlobal EntityKind = "global"
)

// Entity identifies the owner of a series.
type Entity struct {
	Kind EntityKind `cbor:"1,keyasint"`
	ID   string     `cbor:"2,keyasint,omitempty"`
}

// Global is the network-wide entity.
var Global = Entity{Kind: KindGlobal}

// MixEntity returns the entity of mix id.
func MixEntity(id sim.MixID) Entity { return Entity{Kind: KindMix, ID: fmt.Sprint(int(id))} }

// ClientEntity returns the entity of client p.
func ClientEntity(p sim.Pseudonym) Entity { return Entity{Kind: KindClient, ID: string(p)} }

func (e Entity) String() string {
	if e.Kind == KindGlobal {
		return string(KindGlobal)
	}
	return string(e.Kind) + "/" + e.ID
}

// ParseEntity parses "global", "mix/<id>" or "client/<id>".
func ParseEntity(s string) (Entity, error) {
	if s == string(KindGlobal) {
		return Global, nil
	}
	kind, id, ok := strings.Cut(s, "/")
	if !ok || id == "" {
		return Entity{}, fmt.Errorf("invalid entity %q, want global, mix/<id> or client/<id>", s)
	}
	switch EntityKind(kind) {
	case KindMix, KindClient:
		return Entity{Kind: EntityKind(kind), ID: id}, nil
	}
	return Entity{}, fmt.Errorf("invalid entity kind %q", kind)
}

// Less orders entities by kind, then id, numerically when both ids are numbers.
func (e Entity) Less(o Entity) bool {
	if e.Kind != o.Kind {
		return e.Kind < o.Kind
	}
	if len(e.ID) != len(o.ID) && isDigits(e.ID) && isDigits(o.ID) {
		return len(e.ID) < len(o.ID)
	}
	return e.ID < o.ID
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Sample is one recorded value at virtual time Time.
type Sample struct {
	Time  int64   `cbor:"1,keyasint"`
	Value float64 `cbor:"2,keyasint"`
}
