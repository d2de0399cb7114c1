// Defines the Message struct that models a request or reply travelling through the mix network.
// Tracks its route, current hop, processing stage and the timestamps used for latency statistics.

package sim

import "fmt"

// MessageKind distinguishes requests (client → destination) from replies
// (destination → client, reverse path).
type MessageKind string

const (
	KindRequest MessageKind = "request"
	KindReply   MessageKind = "reply"
)

// Stage represents the lifecycle state of a message inside the network.
type Stage string

const (
	StageCreated     Stage = "created"
	StageUnprocessed Stage = "unprocessed" // queued at a mix, not yet seen by the strategy
	StageBatching    Stage = "batching"    // held by the output strategy
	StageProcessed   Stage = "processed"   // recoded, ready to send
	StageSent        Stage = "sent"        // left the mix
	StageDelivered   Stage = "delivered"
	StageDropped     Stage = "dropped"
)

// Pseudonym is an opaque identifier standing in for a client or recipient identity.
type Pseudonym string

// Message is one unit of traffic. Requests and replies are symmetric but travel
// in opposite directions along the same route.
type Message struct {
	ID      string
	Kind    MessageKind
	Payload []byte

	Source      Pseudonym // sending client
	Recipient   Pseudonym // end recipient behind the exit mix
	Destination MixID     // exit mix the route must terminate at
	Session     string    // route cache key within the client (empty = client-wide)

	Route    MixList // assigned route (dynamic requests carry only the entry mix)
	HopIndex int     // position of the mix currently holding the message in Route
	NextHop  MixID   // next mix, or NoHop for local delivery
	Visited  []MixID // mixes traversed so far, in order

	Dummy bool  // cover traffic, dropped at the exit instead of delivered
	Stage Stage // current lifecycle stage

	CreatedAt   int64  // injection time (ticks)
	EnqueuedAt  int64  // time the message entered the current mix's unprocessed queue
	ProcessedAt int64  // time the current mix released it to the processed queue
	RequestID   string // for replies: ID of the request being answered
}

// Size returns the payload length in bytes.
func (m *Message) Size() int {
	return len(m.Payload)
}

// IsReply reports whether the message travels on the reply path.
func (m *Message) IsReply() bool {
	return m.Kind == KindReply
}

// This method returns a human-readable string representation of a Message.
func (m Message) String() string {
	return fmt.Sprintf("Message: (ID: %s, Kind: %s, Stage: %s, Hop: %d, Next: %d)", m.ID, m.Kind, m.Stage, m.HopIndex, m.NextHop)
}
