// Package lattice implements multi-shot lattice agreement: per-shot
// proposer/acceptor instances, a manager that multiplexes concurrently
// outstanding shots, and the narrow broadcaster callback that breaks the
// Node<->LatticeAgreement ownership cycle.
package lattice

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dyv-paxos/latticebroadcast/internal/logger"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

// Broadcaster is the narrow callback surface an LAInstance needs from the
// node runtime, replacing the source's LatticeAgreementInstance->Node
// back-pointer per Design Note 9.
type Broadcaster interface {
	Broadcast(instance uint32, msg wire.LAMessage)
	SendTo(instance uint32, msg wire.LAMessage, peerID uint64)
}

// Instance is one shot of the lattice-agreement protocol: proposer and
// acceptor roles co-resident, a single mutex serializing every
// transition, grounded field-for-field on LatticeAgreementInstance in
// lattice_agreement.cpp/.hpp.
type Instance struct {
	id          uint32
	n           int
	broadcaster Broadcaster
	out         *logger.EventLog
	log         logrus.FieldLogger

	mu sync.Mutex

	active       bool
	hasProposal  bool
	activeRound  uint32
	proposed     map[uint32]struct{}
	accepted     map[uint32]struct{}
	ackCount     uint32
	nackCount    uint32
	ackSentCount uint32

	decided    bool
	terminated bool

	// waitCV shares inst.mu as its lock: the source uses a distinct
	// decision_mutex, but that only works there because
	// waitUntilDecidedOrTerminated never also takes la_mutex. Sharing one
	// mutex here keeps the same "decide while holding the state lock,
	// signal waiters" shape without the lock-order hazard a second mutex
	// would add to WaitUntilDecidedOrTerminated's read of decided/terminated.
	waitCV *sync.Cond
}

// NewInstance returns a fresh, inactive lattice-agreement instance for id,
// running among n processes.
func NewInstance(id uint32, n int, broadcaster Broadcaster, out *logger.EventLog, log logrus.FieldLogger) *Instance {
	inst := &Instance{
		id:          id,
		n:           n,
		broadcaster: broadcaster,
		out:         out,
		log:         log,
		proposed:    make(map[uint32]struct{}),
		accepted:    make(map[uint32]struct{}),
	}
	inst.waitCV = sync.NewCond(&inst.mu)
	return inst
}

// majorityThreshold is the strict-majority count (> N/2) the spec's Open
// Question resolution picked: floor(N/2)+1, which is always more than
// half of N.
func (inst *Instance) majorityThreshold() uint32 {
	return uint32(inst.n/2 + 1)
}

// Propose installs a fresh proposal set, merges it with whatever has
// already been accepted, self-acks, and broadcasts round 0.
func (inst *Instance) Propose(values []uint32) {
	inst.mu.Lock()
	inst.hasProposal = true
	inst.active = true
	inst.proposed = toSet(values)
	inst.updateProposalLocked()
	msg := wire.LAMessage{Type: wire.MES, Round: inst.activeRound, Proposed: setToSlice(inst.proposed)}
	inst.mu.Unlock()

	inst.broadcaster.Broadcast(inst.id, msg)
}

// updateProposalLocked merges accepted into proposed, accepts proposed as
// the new accepted set, and resets the self-ack counters. Caller must
// hold mu.
func (inst *Instance) updateProposalLocked() {
	for v := range inst.accepted {
		inst.proposed[v] = struct{}{}
	}
	inst.accepted = make(map[uint32]struct{}, len(inst.proposed))
	for v := range inst.proposed {
		inst.accepted[v] = struct{}{}
	}
	inst.ackSentCount = 1
	inst.ackCount = 1
}

// OnMessage dispatches an inbound LA message by type and reports whether
// this instance may now be destroyed (decided and acked by every
// process, invariant 7).
func (inst *Instance) OnMessage(m wire.LAMessage, sender uint64) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch m.Type {
	case wire.MES:
		inst.onProposeLocked(m, sender)
	case wire.ACK:
		inst.onAckLocked(m)
	case wire.NACK:
		inst.onNackLocked(m)
	}

	return inst.decided && inst.ackSentCount == uint32(inst.n)
}

func (inst *Instance) onProposeLocked(m wire.LAMessage, sender uint64) {
	incoming := toSet(m.Proposed)
	if includes(incoming, inst.accepted) {
		for v := range incoming {
			inst.accepted[v] = struct{}{}
		}
		inst.ackSentCount++
		inst.broadcaster.SendTo(inst.id, m.ToAck(), sender)
		return
	}
	for v := range incoming {
		inst.accepted[v] = struct{}{}
	}
	inst.broadcaster.SendTo(inst.id, m.ToNack(setToSlice(inst.accepted)), sender)
}

func (inst *Instance) onAckLocked(m wire.LAMessage) {
	if m.Round != inst.activeRound {
		return
	}
	inst.ackCount++
	if inst.active && inst.ackCount >= inst.majorityThreshold() {
		inst.active = false
		inst.decideLocked()
	}
}

func (inst *Instance) onNackLocked(m wire.LAMessage) {
	if m.Round != inst.activeRound {
		return
	}
	inst.nackCount++
	for _, v := range m.Proposed {
		inst.proposed[v] = struct{}{}
	}

	if !(inst.active && inst.nackCount > 0 && inst.ackCount+inst.nackCount >= inst.majorityThreshold()) {
		return
	}

	inst.activeRound++
	inst.ackCount = 0
	inst.nackCount = 0
	inst.updateProposalLocked()
	msg := wire.LAMessage{Type: wire.MES, Round: inst.activeRound, Proposed: setToSlice(inst.proposed)}
	inst.broadcaster.Broadcast(inst.id, msg)

	// Re-check the ACK majority rule: with N <= 2 the self-ack issued by
	// updateProposalLocked may already satisfy it.
	if inst.active && inst.ackCount >= inst.majorityThreshold() {
		inst.active = false
		inst.decideLocked()
	}
}

// decideLocked marks the instance decided, logs the decision line, and
// wakes any waiter. Idempotent. Caller must hold mu.
func (inst *Instance) decideLocked() {
	if inst.decided || !inst.hasProposal {
		return
	}
	inst.decided = true
	inst.active = false
	inst.out.LogDecision(setToSlice(inst.proposed))
	inst.waitCV.Broadcast()
}

// Terminate marks the instance terminated and wakes any waiter, used on
// node shutdown to unblock a proposer still waiting on a decision.
func (inst *Instance) Terminate() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.terminated = true
	inst.waitCV.Broadcast()
}

// WaitUntilDecidedOrTerminated blocks until the instance has decided or
// been terminated.
func (inst *Instance) WaitUntilDecidedOrTerminated() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	for !(inst.decided || inst.terminated) {
		inst.waitCV.Wait()
	}
}

// Decided reports whether the instance has reached a decision and, if
// so, the decided set.
func (inst *Instance) Decided() (bool, []uint32) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.decided {
		return false, nil
	}
	return true, setToSlice(inst.proposed)
}

func toSet(values []uint32) map[uint32]struct{} {
	s := make(map[uint32]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func setToSlice(s map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// includes reports whether super is a superset of sub, mirroring
// std::includes over the sorted proposal sets in the source.
func includes(super, sub map[uint32]struct{}) bool {
	for v := range sub {
		if _, ok := super[v]; !ok {
			return false
		}
	}
	return true
}
