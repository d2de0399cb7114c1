package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"

	"github.com/inference-sim/mixnet-sim/sim"
)

// FlowFilter decides which flows a trace-driven source replays.
// Name and Version identify the filter in run metadata.
type FlowFilter interface {
	Name() string
	Version() string
	Reject(f *Flow) bool
}

// Chain rejects a flow if any member rejects it. An empty chain accepts everything.
type Chain []FlowFilter

// Name implements FlowFilter.
func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name()
	}
	return strings.Join(names, "+")
}

// Version implements FlowFilter.
func (c Chain) Version() string {
	vs := make([]string, len(c))
	for i, f := range c {
		vs[i] = f.Version()
	}
	return strings.Join(vs, "+")
}

// Reject implements FlowFilter.
func (c Chain) Reject(f *Flow) bool {
	for _, filter := range c {
		if filter.Reject(f) {
			return true
		}
	}
	return false
}

// HTTPOutgoing keeps HTTP and HTTPS flows initiated from the local network
// that carried a request payload.
type HTTPOutgoing struct{}

func (HTTPOutgoing) Name() string    { return "http-outgoing" }
func (HTTPOutgoing) Version() string { return "1" }

// Reject implements FlowFilter.
func (HTTPOutgoing) Reject(f *Flow) bool {
	if f.Protocol != ProtoHTTP && f.Protocol != ProtoHTTPS {
		return true
	}
	return f.Direction != ToWAN || f.RequestSize == 0
}

// TCPOnly keeps TCP flows.
type TCPOnly struct{}

func (TCPOnly) Name() string    { return "tcp-only" }
func (TCPOnly) Version() string { return "1" }

// Reject implements FlowFilter.
func (TCPOnly) Reject(f *Flow) bool { return f.Transport != layers.IPProtocolTCP }

// Outgoing keeps flows initiated from the local network towards the WAN.
type Outgoing struct{}

func (Outgoing) Name() string    { return "outgoing" }
func (Outgoing) Version() string { return "1" }

// Reject implements FlowFilter.
func (Outgoing) Reject(f *Flow) bool { return !f.IsOutgoing() }

// MinBytes keeps flows that moved at least Threshold bytes.
type MinBytes struct {
	Threshold int64
}

func (m MinBytes) Name() string  { return fmt.Sprintf("min-bytes:%d", m.Threshold) }
func (MinBytes) Version() string { return "1" }

// Reject implements FlowFilter.
func (m MinBytes) Reject(f *Flow) bool { return f.Bytes < m.Threshold }

// NewFlowFilter creates a built-in filter by name: http-outgoing, tcp-only,
// outgoing or min-bytes:<n>.
func NewFlowFilter(name string) (FlowFilter, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "http-outgoing":
		return HTTPOutgoing{}, nil
	case name == "tcp-only":
		return TCPOnly{}, nil
	case name == "outgoing":
		return Outgoing{}, nil
	case strings.HasPrefix(name, "min-bytes:"):
		n, err := strconv.ParseInt(strings.TrimPrefix(name, "min-bytes:"), 10, 64)
		if err != nil || n < 0 {
			return nil, &sim.ConfigurationError{Key: "FLOW_FILTERS", Value: name, Err: fmt.Errorf("invalid byte threshold")}
		}
		return MinBytes{Threshold: n}, nil
	}
	return nil, &sim.ConfigurationError{Key: "FLOW_FILTERS", Value: name, Err: fmt.Errorf("unknown flow filter")}
}

// ParseChain builds a Chain from filter names.
func ParseChain(names []string) (Chain, error) {
	chain := make(Chain, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		f, err := NewFlowFilter(n)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	return chain, nil
}
