package trace

import "fmt"

// Level selects which routing decisions a run records.
type Level string

const (
	// LevelNone records nothing.
	LevelNone Level = "none"
	// LevelRoutes records route assignments only.
	LevelRoutes Level = "routes"
	// LevelDecisions records route assignments and every per-hop forwarding decision.
	LevelDecisions Level = "decisions"
)

// ParseLevel maps a configured level to a Level. The empty string is LevelNone.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case "", LevelNone:
		return LevelNone, nil
	case LevelRoutes, LevelDecisions:
		return l, nil
	}
	return "", fmt.Errorf("unknown trace level %q; valid: none, routes, decisions", s)
}

// Log collects decision records during a run. A nil *Log records nothing.
type Log struct {
	Level       Level
	Assignments []AssignmentRecord
	Hops        []HopRecord
}

// New returns an empty Log recording at level.
func New(level Level) *Log {
	return &Log{Level: level}
}

// RecordsRoutes reports whether assignments are kept.
func (l *Log) RecordsRoutes() bool {
	return l != nil && (l.Level == LevelRoutes || l.Level == LevelDecisions)
}

// RecordsHops reports whether forwarding decisions are kept.
func (l *Log) RecordsHops() bool {
	return l != nil && l.Level == LevelDecisions
}

func (l *Log) RecordAssignment(rec AssignmentRecord) {
	if l.RecordsRoutes() {
		l.Assignments = append(l.Assignments, rec)
	}
}

func (l *Log) RecordHop(rec HopRecord) {
	if l.RecordsHops() {
		l.Hops = append(l.Hops, rec)
	}
}

// Path rebuilds the mixes a message visited from its hop records, in order.
// Request and reply legs are kept apart.
func (l *Log) Path(messageID string, reply bool) []int {
	if l == nil {
		return nil
	}
	var path []int
	for _, h := range l.Hops {
		if h.MessageID == messageID && h.Reply == reply {
			path = append(path, h.AtMix)
		}
	}
	return path
}
