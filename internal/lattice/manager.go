package lattice

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dyv-paxos/latticebroadcast/internal/logger"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

// Manager is a mutex-guarded map of instance id to Instance, lazily
// materializing instances on first contact (message or local propose),
// and multiplexing concurrently outstanding shots. Grounded on
// LatticeAgreement/tryAddingInstance in lattice_agreement.cpp.
type Manager struct {
	n           int
	broadcaster Broadcaster
	out         *logger.EventLog
	log         logrus.FieldLogger

	mu        sync.Mutex
	instances map[uint32]*Instance
}

// NewManager returns an empty manager for a cluster of n processes.
func NewManager(n int, broadcaster Broadcaster, out *logger.EventLog, log logrus.FieldLogger) *Manager {
	return &Manager{
		n:           n,
		broadcaster: broadcaster,
		out:         out,
		log:         log,
		instances:   make(map[uint32]*Instance),
	}
}

func (m *Manager) tryAddingInstanceLocked(id uint32) *Instance {
	inst, ok := m.instances[id]
	if !ok {
		inst = NewInstance(id, m.n, m.broadcaster, m.out, m.log)
		m.instances[id] = inst
	}
	return inst
}

// OnMessage dispatches m to its instance (lazily created if this is the
// first contact), and removes the instance from the map if it reports
// itself destroyable.
func (m *Manager) OnMessage(instanceID uint32, msg wire.LAMessage, sender uint64) {
	m.mu.Lock()
	inst := m.tryAddingInstanceLocked(instanceID)
	m.mu.Unlock()

	destroy := inst.OnMessage(msg, sender)
	if destroy {
		m.mu.Lock()
		delete(m.instances, instanceID)
		m.mu.Unlock()
	}
}

// Propose lazily materializes instanceID and proposes values on it.
func (m *Manager) Propose(instanceID uint32, values []uint32) {
	m.mu.Lock()
	inst := m.tryAddingInstanceLocked(instanceID)
	m.mu.Unlock()

	inst.Propose(values)
}

// WaitUntilDecidedOrTerminated blocks on instanceID's decision. The
// instance must already exist (created by a prior Propose or OnMessage).
func (m *Manager) WaitUntilDecidedOrTerminated(instanceID uint32) {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	inst.WaitUntilDecidedOrTerminated()
}

// Terminate calls Terminate on every live instance, used on node
// shutdown to unblock any proposal worker still waiting.
func (m *Manager) Terminate() {
	m.mu.Lock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		instances = append(instances, inst)
	}
	m.mu.Unlock()

	for _, inst := range instances {
		inst.Terminate()
	}
}
