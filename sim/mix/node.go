package mix

import "github.com/inference-sim/mixnet-sim/sim"

// Node is one mix of the network: its public id, its address towards the info
// service, and its pipeline.
type Node struct {
	ID       sim.MixID
	Address  string
	Pipeline *Pipeline
}

// NewNode binds a pipeline to a mix identity.
func NewNode(id sim.MixID, address string, p *Pipeline) *Node {
	return &Node{ID: id, Address: address, Pipeline: p}
}

// QueueLength implements the load view used by state-dependent routing.
func (n *Node) QueueLength() int {
	return n.Pipeline.QueueLength()
}
