package routing

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/mixnet-sim/sim"
)

// InfoService hands out public mix identifiers. The first time an address
// connects it receives the next value of a monotonically increasing counter;
// identifiers are never reused within a run, even after Deregister.
//
// Thread-safety: NOT thread-safe. Owned by one Engine.
type InfoService struct {
	next   sim.MixID
	byAddr map[string]sim.MixID
	addrs  map[sim.MixID]string
	active map[sim.MixID]bool
}

// NewInfoService creates an InfoService whose first assigned id is 0.
func NewInfoService() *InfoService {
	return &InfoService{
		byAddr: make(map[string]sim.MixID),
		addrs:  make(map[sim.MixID]string),
		active: make(map[sim.MixID]bool),
	}
}

// Register returns the id for address, assigning a new one on first connection.
// A reconnecting address gets its previous id back and is marked active again.
func (s *InfoService) Register(address string) sim.MixID {
	if id, ok := s.byAddr[address]; ok {
		s.active[id] = true
		return id
	}
	id := s.next
	s.next++
	s.byAddr[address] = id
	s.addrs[id] = address
	s.active[id] = true
	logrus.Debugf("info service: assigned mix id %d to %s", id, address)
	return id
}

// Deregister marks a mix as gone. Its id stays reserved.
func (s *InfoService) Deregister(id sim.MixID) {
	delete(s.active, id)
}

// Lookup returns the address registered for id.
func (s *InfoService) Lookup(id sim.MixID) (string, bool) {
	addr, ok := s.addrs[id]
	return addr, ok
}

// IsKnown reports whether id is currently registered and active.
func (s *InfoService) IsKnown(id sim.MixID) bool {
	return s.active[id]
}

// Known returns the active mix ids in ascending order.
func (s *InfoService) Known() []sim.MixID {
	ids := make([]sim.MixID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Assigned returns how many ids have been handed out so far.
func (s *InfoService) Assigned() int {
	return int(s.next)
}
