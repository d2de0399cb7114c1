// Package trace provides decision-trace recording for routing analysis.
// It does not import sim so the records stay plain data.
package trace

// LocalDelivery is the NextMix value recorded when a message leaves the network.
const LocalDelivery = -1

// AssignmentRecord captures a single route assignment decision.
type AssignmentRecord struct {
	MessageID string
	Client    string
	Clock     int64
	Mode      string
	Route     []int // assigned mix ids (nil if rejected)
	Accepted  bool
	Reason    string
}

// HopRecord captures a single forwarding decision taken at a mix.
type HopRecord struct {
	MessageID string
	Clock     int64
	AtMix     int
	NextMix   int // LocalDelivery when the mix is the terminus
	Reply     bool
	Reason    string
}
