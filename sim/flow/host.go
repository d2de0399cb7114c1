package flow

import (
	"net/netip"
	"sort"
)

// Counters accumulate the traffic between a local host and one peer.
type Counters struct {
	BytesSent       int64
	BytesReceived   int64
	PacketsSent     int64
	PacketsReceived int64
	FirstSeen       int64
	LastSeen        int64
}

// ActiveDuration returns the span between the first and last packet exchanged.
func (c Counters) ActiveDuration() int64 { return c.LastSeen - c.FirstSeen }

func (c *Counters) observe(ts int64) {
	if c.PacketsSent+c.PacketsReceived == 0 || ts < c.FirstSeen {
		c.FirstSeen = ts
	}
	if ts > c.LastSeen {
		c.LastSeen = ts
	}
}

func (c *Counters) add(o Counters) {
	if c.PacketsSent+c.PacketsReceived == 0 || (o.PacketsSent+o.PacketsReceived > 0 && o.FirstSeen < c.FirstSeen) {
		c.FirstSeen = o.FirstSeen
	}
	if o.LastSeen > c.LastSeen {
		c.LastSeen = o.LastSeen
	}
	c.BytesSent += o.BytesSent
	c.BytesReceived += o.BytesReceived
	c.PacketsSent += o.PacketsSent
	c.PacketsReceived += o.PacketsReceived
}

// Host is a local address and everything it exchanged with its peers.
type Host struct {
	Addr  netip.Addr
	peers map[netip.Addr]*Counters
	flows []*Flow
}

func newHost(addr netip.Addr) *Host {
	return &Host{Addr: addr, peers: make(map[netip.Addr]*Counters)}
}

func (h *Host) peer(addr netip.Addr) *Counters {
	c, ok := h.peers[addr]
	if !ok {
		c = &Counters{}
		h.peers[addr] = c
	}
	return c
}

// Peers returns the addresses the host exchanged packets with, in ascending order.
func (h *Host) Peers() []netip.Addr {
	out := make([]netip.Addr, 0, len(h.peers))
	for a := range h.peers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Peer returns the counters for one peer.
func (h *Host) Peer(addr netip.Addr) (Counters, bool) {
	c, ok := h.peers[addr]
	if !ok {
		return Counters{}, false
	}
	return *c, true
}

// Totals sums the counters over all peers.
func (h *Host) Totals() Counters {
	var total Counters
	for _, a := range h.Peers() {
		total.add(*h.peers[a])
	}
	return total
}

// Flows returns copies of the flows the host took part in, ordered by start time.
func (h *Host) Flows() []Flow {
	out := make([]Flow, len(h.flows))
	for i, f := range h.flows {
		out[i] = *f
	}
	return out
}
