package flow

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/sirupsen/logrus"
)

// DefaultLocalPrefixes are the private address ranges treated as the local
// network when no prefixes are configured.
func DefaultLocalPrefixes() []netip.Prefix {
	return []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("fc00::/7"),
	}
}

// ParsePrefixes parses CIDR strings such as "192.168.0.0/16".
func ParsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("parsing local prefix %q: %w", c, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Index holds the flows and local hosts of one trace folder.
// It is built once by BuildIndex and never modified afterwards; accessors
// return copies.
type Index struct {
	local []netip.Prefix
	flows []*Flow
	byKey map[Key]*Flow
	hosts map[netip.Addr]*Host
}

// BuildIndex groups packets into flows and local hosts. Packets are processed
// in timestamp order. A nil local slice selects DefaultLocalPrefixes.
func BuildIndex(packets []Packet, local []netip.Prefix) *Index {
	if local == nil {
		local = DefaultLocalPrefixes()
	}
	idx := &Index{
		local: append([]netip.Prefix(nil), local...),
		byKey: make(map[Key]*Flow),
		hosts: make(map[netip.Addr]*Host),
	}
	ordered := append([]Packet(nil), packets...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })
	for _, p := range ordered {
		idx.add(p)
	}
	logrus.Debugf("flow index: %d packets, %d flows, %d local hosts", len(packets), len(idx.flows), len(idx.hosts))
	return idx
}

func (idx *Index) add(p Packet) {
	key := Key{Initiator: p.SrcAddrPort(), Responder: p.DstAddrPort(), Transport: p.Transport}
	f, forward := idx.byKey[key], true
	if f == nil {
		if rev := idx.byKey[key.Reverse()]; rev != nil {
			f, forward = rev, false
		}
	}
	if f == nil {
		f = &Flow{
			Key:       key,
			Direction: classify(idx.IsLocal(p.Src), idx.IsLocal(p.Dst)),
			Protocol:  guessProtocol(p.Transport, p.DstPort),
			Start:     p.Timestamp,
		}
		idx.byKey[key] = f
		idx.flows = append(idx.flows, f)
		for _, a := range []netip.Addr{p.Src, p.Dst} {
			if h := idx.localHost(a); h != nil {
				h.flows = append(h.flows, f)
			}
		}
	}
	f.End = p.Timestamp
	f.Bytes += int64(p.Length)
	f.Packets++
	if forward {
		f.RequestSize += int64(p.PayloadLen)
	} else {
		f.ReplySize += int64(p.PayloadLen)
	}

	if h := idx.localHost(p.Src); h != nil {
		c := h.peer(p.Dst)
		c.observe(p.Timestamp)
		c.BytesSent += int64(p.Length)
		c.PacketsSent++
	}
	if h := idx.localHost(p.Dst); h != nil {
		c := h.peer(p.Src)
		c.observe(p.Timestamp)
		c.BytesReceived += int64(p.Length)
		c.PacketsReceived++
	}
}

func (idx *Index) localHost(a netip.Addr) *Host {
	if !idx.IsLocal(a) {
		return nil
	}
	h, ok := idx.hosts[a]
	if !ok {
		h = newHost(a)
		idx.hosts[a] = h
	}
	return h
}

// IsLocal reports whether a falls inside one of the local prefixes.
func (idx *Index) IsLocal(a netip.Addr) bool {
	for _, p := range idx.local {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Len returns the number of flows.
func (idx *Index) Len() int { return len(idx.flows) }

// Flows returns copies of all flows ordered by start time.
func (idx *Index) Flows() []Flow {
	out := make([]Flow, len(idx.flows))
	for i, f := range idx.flows {
		out[i] = *f
	}
	return out
}

// Lookup finds the flow a packet belongs to, in either orientation.
func (idx *Index) Lookup(p Packet) (Flow, bool) {
	key := Key{Initiator: p.SrcAddrPort(), Responder: p.DstAddrPort(), Transport: p.Transport}
	if f, ok := idx.byKey[key]; ok {
		return *f, true
	}
	if f, ok := idx.byKey[key.Reverse()]; ok {
		return *f, true
	}
	return Flow{}, false
}

// Filter returns copies of the flows filter does not reject.
func (idx *Index) Filter(filter FlowFilter) []Flow {
	var out []Flow
	for _, f := range idx.flows {
		c := *f
		if filter == nil || !filter.Reject(&c) {
			out = append(out, c)
		}
	}
	return out
}

// Hosts returns the local hosts in ascending address order.
func (idx *Index) Hosts() []*Host {
	out := make([]*Host, 0, len(idx.hosts))
	for _, h := range idx.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr.Less(out[j].Addr) })
	return out
}

// Host returns the local host with address a.
func (idx *Index) Host(a netip.Addr) (*Host, bool) {
	h, ok := idx.hosts[a]
	return h, ok
}
