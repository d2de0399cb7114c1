package trace

// Summary aggregates a Log.
type Summary struct {
	Assignments int            `json:"assignments"`
	Accepted    int            `json:"accepted"`
	Rejected    int            `json:"rejected"`
	Rejections  map[string]int `json:"rejections,omitempty"` // reason → count
	Hops        int            `json:"hops"`
	Deliveries  int            `json:"deliveries"` // hops with no next mix
	MeanHops    float64        `json:"mean_hops"`
	MaxHops     int            `json:"max_hops"`
	NextMixes   map[int]int    `json:"next_mixes,omitempty"` // next mix id → forwarding decisions
}

// Summarize computes a Summary. A nil log yields zero counts.
func Summarize(l *Log) *Summary {
	s := &Summary{Rejections: make(map[string]int), NextMixes: make(map[int]int)}
	if l == nil {
		return s
	}
	s.Assignments = len(l.Assignments)
	for _, a := range l.Assignments {
		if a.Accepted {
			s.Accepted++
			continue
		}
		s.Rejected++
		s.Rejections[a.Reason]++
	}

	perMessage := make(map[string]int)
	for _, h := range l.Hops {
		s.Hops++
		perMessage[h.MessageID]++
		if h.NextMix == LocalDelivery {
			s.Deliveries++
		} else {
			s.NextMixes[h.NextMix]++
		}
	}
	for _, n := range perMessage {
		if n > s.MaxHops {
			s.MaxHops = n
		}
	}
	if len(perMessage) > 0 {
		s.MeanHops = float64(s.Hops) / float64(len(perMessage))
	}
	return s
}
