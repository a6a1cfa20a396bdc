package node

import (
	"github.com/dyv-paxos/latticebroadcast/internal/lattice"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

// LABroadcaster adapts a Node[wire.LAEntry] to lattice.Broadcaster.
// The instance number is packet-entry framing (SPEC_FULL.md §13), carried
// in LAEntry rather than in LAMessage itself, so unlike the URB case
// Node[M] cannot satisfy lattice.Broadcaster directly through its type
// parameter — this adapter does the wrapping.
type LABroadcaster struct {
	node *Node[wire.LAEntry]
}

// NewLABroadcaster returns the lattice.Broadcaster LA instances use to
// reach n.
func NewLABroadcaster(n *Node[wire.LAEntry]) LABroadcaster {
	return LABroadcaster{node: n}
}

func (b LABroadcaster) Broadcast(instance uint32, msg wire.LAMessage) {
	b.node.EnqueueToAll(wire.LAEntry{Instance: instance, Message: msg}, 0)
}

func (b LABroadcaster) SendTo(instance uint32, msg wire.LAMessage, peerID uint64) {
	b.node.SendToPeer(peerID, wire.LAEntry{Instance: instance, Message: msg})
}

// laUpcall adapts a lattice.Manager to node.Upcall[wire.LAEntry], undoing
// the Instance/Message wrapping EncodeLAEntry/DecodeLAEntry applies on
// the wire.
type laUpcall struct {
	manager *lattice.Manager
}

// NewLAUpcall returns the node.Upcall a Node[wire.LAEntry] listener
// dispatches first-time messages to.
func NewLAUpcall(manager *lattice.Manager) Upcall[wire.LAEntry] {
	return laUpcall{manager: manager}
}

func (u laUpcall) OnReceiveLinkMessage(fromPeer uint64, e wire.LAEntry) {
	u.manager.OnMessage(e.Instance, e.Message, fromPeer)
}
