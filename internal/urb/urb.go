// Package urb implements uniform reliable broadcast on top of perfect
// links: per-origin relay-on-first-sight and majority-ack delivery, with
// strict FIFO-per-origin ordering.
package urb

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dyv-paxos/latticebroadcast/internal/concurrent"
	"github.com/dyv-paxos/latticebroadcast/internal/logger"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

// Broadcaster is the narrow callback surface URB needs from the node
// runtime: enqueue a message on every outbound link (optionally skipping
// one, for relay). This breaks the cyclic Node<->URB ownership the way
// Design Note 9 prescribes for Node<->LatticeAgreement.
type Broadcaster interface {
	EnqueueToAll(msg wire.URBMessage, exceptPeer uint64)
}

type originState struct {
	mu           sync.Mutex
	pending      *concurrent.Set[uint32]
	ackedBy      *concurrent.SetMap[uint32, uint64]
	nextExpected uint32
}

func newOriginState() *originState {
	return &originState{
		pending:      concurrent.NewSet[uint32](),
		ackedBy:      concurrent.NewSetMap[uint32, uint64](),
		nextExpected: 1,
	}
}

// URB is the per-process broadcast state, holding one originState per
// process id that has ever broadcast or relayed through this node.
type URB struct {
	selfID      uint64
	n           int
	broadcaster Broadcaster
	out         *logger.EventLog
	log         logrus.FieldLogger

	nextSeq uint32 // atomic; own sequence counter, starts issuing at 1

	origins *concurrent.Map[uint64, *originState]
}

// New returns a URB engine for a process running among n total processes.
func New(selfID uint64, n int, broadcaster Broadcaster, out *logger.EventLog, log logrus.FieldLogger) *URB {
	return &URB{
		selfID:      selfID,
		n:           n,
		broadcaster: broadcaster,
		out:         out,
		log:         log,
		origins:     concurrent.NewMap[uint64, *originState](),
	}
}

func (u *URB) stateFor(origin uint64) *originState {
	if st, ok := u.origins.Find(origin); ok {
		return st
	}
	st := newOriginState()
	// Insert is first-writer-wins; a loser just uses the winner's state.
	u.origins.Insert(origin, st)
	winner, _ := u.origins.Find(origin)
	return winner
}

// Broadcast allocates a fresh per-self sequence number, logs the
// broadcast event, records self as the first acker, and enqueues the
// message to every neighbor.
func (u *URB) Broadcast() uint32 {
	seq := atomic.AddUint32(&u.nextSeq, 1)
	u.out.LogBroadcast(seq)

	st := u.stateFor(u.selfID)
	st.mu.Lock()
	st.pending.Insert(seq)
	st.ackedBy.AddToMappedSet(seq, u.selfID)
	st.mu.Unlock()

	u.broadcaster.EnqueueToAll(wire.URBMessage{Seq: seq, Origin: u.selfID}, 0)
	return seq
}

// OnReceiveLinkMessage implements node.Upcall for the URB mode: on
// first sight of (origin, seq) it relays to every neighbor, tracks
// acks, and runs FIFO-per-origin delivery once a majority has acked.
func (u *URB) OnReceiveLinkMessage(fromPeer uint64, m wire.URBMessage) {
	st := u.stateFor(m.Origin)

	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Seq < st.nextExpected {
		return // already delivered
	}

	st.ackedBy.AddToMappedSet(m.Seq, fromPeer)

	if !st.pending.Contains(m.Seq) {
		st.pending.Insert(m.Seq)
		st.ackedBy.AddToMappedSet(m.Seq, u.selfID)
		u.broadcaster.EnqueueToAll(m, 0)
	}

	for u.canDeliverLocked(st, m.Origin, st.nextExpected) {
		seq := st.nextExpected
		u.out.LogDelivery(m.Origin, seq)
		st.pending.Erase(seq)
		st.ackedBy.Erase(seq)
		st.nextExpected++
	}
}

func (u *URB) canDeliverLocked(st *originState, origin uint64, seq uint32) bool {
	if seq != st.nextExpected {
		return false
	}
	if !st.ackedBy.Contains(seq) {
		return false
	}
	return st.ackedBy.MappedSetSize(seq) > u.n/2
}
