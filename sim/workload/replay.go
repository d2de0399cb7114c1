package workload

import (
	"hash/fnv"
	"net/netip"
	"sort"

	"github.com/inference-sim/mixnet-sim/sim"
	"github.com/inference-sim/mixnet-sim/sim/flow"
)

// ExitMapper chooses the exit mix through which a remote endpoint is reached.
type ExitMapper func(remote netip.Addr) sim.MixID

// HashExits maps each remote address onto exits by FNV-1a hash, so the same
// server is always reached through the same exit.
// Panics if exits is empty.
func HashExits(exits []sim.MixID) ExitMapper {
	if len(exits) == 0 {
		panic("HashExits: no exit mixes")
	}
	sorted := append([]sim.MixID(nil), exits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return func(remote netip.Addr) sim.MixID {
		h := fnv.New32a()
		b := remote.As16()
		h.Write(b[:])
		return sorted[h.Sum32()%uint32(len(sorted))]
	}
}

// FromTrace converts captured traffic into per-client send schedules.
// Every payload-carrying packet sent by the local initiator of a flow the filter
// accepts becomes one request from that host. Each flow is its own session.
// Times are rebased so the earliest packet in the trace is tick 0.
// Returns clients sorted by ID; hosts without accepted traffic are omitted.
func FromTrace(packets []flow.Packet, idx *flow.Index, filter flow.FlowFilter, mapper ExitMapper) []ClientSends {
	if len(packets) == 0 {
		return nil
	}
	origin := packets[0].Timestamp
	for _, p := range packets[1:] {
		if p.Timestamp < origin {
			origin = p.Timestamp
		}
	}

	accepted := make(map[flow.Key]bool)
	for _, f := range idx.Filter(filter) {
		if idx.IsLocal(f.Initiator.Addr()) {
			accepted[f.Key] = true
		}
	}

	byClient := make(map[sim.Pseudonym][]Send)
	for _, p := range packets {
		if p.PayloadLen <= 0 {
			continue
		}
		f, ok := idx.Lookup(p)
		if !ok || !accepted[f.Key] || p.SrcAddrPort() != f.Initiator {
			continue
		}
		client := sim.Pseudonym(p.Src.String())
		byClient[client] = append(byClient[client], Send{
			Time:        p.Timestamp - origin,
			Size:        p.PayloadLen,
			Session:     f.Key.String(),
			Destination: mapper(f.Responder.Addr()),
		})
	}

	out := make([]ClientSends, 0, len(byClient))
	for client, sends := range byClient {
		sort.SliceStable(sends, func(i, j int) bool { return sends[i].Time < sends[j].Time })
		out = append(out, ClientSends{Client: client, Sends: sends})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}
