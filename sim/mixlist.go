package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// MixID is the public numeric identifier of a mix node.
type MixID int

// NoHop is the sentinel returned when a message has no further hop and must be
// delivered locally.
const NoHop MixID = -1

// MixList is an ordered, immutable sequence of mix identifiers forming one cascade
// or free route. The zero value is empty and is never returned by NewMixList.
type MixList struct {
	hops []MixID
}

// NewMixList builds a MixList from ids. The list must be non-empty and may not
// contain NoHop.
func NewMixList(ids ...MixID) (MixList, error) {
	if len(ids) == 0 {
		return MixList{}, fmt.Errorf("mix list must not be empty")
	}
	hops := make([]MixID, len(ids))
	for i, id := range ids {
		if id < 0 {
			return MixList{}, fmt.Errorf("mix list position %d: invalid mix id %d", i, id)
		}
		hops[i] = id
	}
	return MixList{hops: hops}, nil
}

// MustMixList is NewMixList for literals in tests and defaults; it panics on error.
func MustMixList(ids ...MixID) MixList {
	l, err := NewMixList(ids...)
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the number of hops.
func (l MixList) Len() int { return len(l.hops) }

// IsEmpty reports whether the list is the zero value.
func (l MixList) IsEmpty() bool { return len(l.hops) == 0 }

// At returns the hop at position i, or NoHop if i is out of range.
func (l MixList) At(i int) MixID {
	if i < 0 || i >= len(l.hops) {
		return NoHop
	}
	return l.hops[i]
}

// Entry returns the first mix of the list.
func (l MixList) Entry() MixID { return l.At(0) }

// Exit returns the last mix of the list.
func (l MixList) Exit() MixID { return l.At(len(l.hops) - 1) }

// IDs returns a copy of the hop sequence.
func (l MixList) IDs() []MixID {
	out := make([]MixID, len(l.hops))
	copy(out, l.hops)
	return out
}

// IndexOf returns the first position of id, or -1.
func (l MixList) IndexOf(id MixID) int {
	for i, h := range l.hops {
		if h == id {
			return i
		}
	}
	return -1
}

// HasLoop reports whether any mix appears more than once.
func (l MixList) HasLoop() bool {
	seen := make(map[MixID]bool, len(l.hops))
	for _, h := range l.hops {
		if seen[h] {
			return true
		}
		seen[h] = true
	}
	return false
}

// Reverse returns the list in opposite order, used for reply paths.
func (l MixList) Reverse() MixList {
	out := make([]MixID, len(l.hops))
	for i, h := range l.hops {
		out[len(l.hops)-1-i] = h
	}
	return MixList{hops: out}
}

// Equal reports whether both lists hold the same hops in the same order.
func (l MixList) Equal(o MixList) bool {
	if len(l.hops) != len(o.hops) {
		return false
	}
	for i := range l.hops {
		if l.hops[i] != o.hops[i] {
			return false
		}
	}
	return true
}

func (l MixList) String() string {
	parts := make([]string, len(l.hops))
	for i, h := range l.hops {
		parts[i] = strconv.Itoa(int(h))
	}
	return "[" + strings.Join(parts, " -> ") + "]"
}

// ParseMixList parses a comma-separated list such as "0,1,2".
func ParseMixList(s string) (MixList, error) {
	fields := strings.Split(s, ",")
	ids := make([]MixID, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return MixList{}, fmt.Errorf("parsing mix list %q: %w", s, err)
		}
		ids = append(ids, MixID(n))
	}
	return NewMixList(ids...)
}
