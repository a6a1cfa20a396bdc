// Package node wires the link, urb, lattice and logger packages into the
// four long-running workers spec.md §4.7 describes: sender, listener,
// logger and (for LA mode, driven by the caller) a proposal worker.
// Grounded on the teacher's paxos.Agent — a single struct embedding its
// socket, peer table and log, with Run/Close starting and tearing down
// background goroutines — generalized to a message type parameter so the
// same runtime serves both URB and LA traffic without duplication.
package node

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyv-paxos/latticebroadcast/internal/config"
	"github.com/dyv-paxos/latticebroadcast/internal/link"
	"github.com/dyv-paxos/latticebroadcast/internal/logger"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

// Upcall is the interface a mode's protocol engine (urb.URB or an LA
// adapter) presents to the listener worker for first-time inbound
// messages. *urb.URB already satisfies Upcall[wire.URBMessage]; LA mode
// is served by the laUpcall adapter in la.go.
type Upcall[M any] interface {
	OnReceiveLinkMessage(fromPeer uint64, m M)
}

// Node owns the shared UDP socket and the per-peer Link table, and runs
// the sender/listener/logger workers. It is generic over the message
// payload so a single implementation backs both URB mode (M =
// wire.URBMessage) and LA mode (M = wire.LAEntry).
type Node[M any] struct {
	SelfID uint64

	conn *net.UDPConn
	log  logrus.FieldLogger
	out  *logger.EventLog

	links     map[uint64]*link.Link[M]
	addrIndex map[string]uint64

	encode link.Encoder[M]
	decode link.Decoder[M]
	upcall Upcall[M]

	sendInterval time.Duration
	logInterval  time.Duration

	running atomic.Bool
	wg      sync.WaitGroup

	recvErrors uint64
}

// New binds no socket itself — conn must already be listening on the
// local host/port — and builds one Link per peer in hosts.
func New[M any](
	selfID uint64,
	conn *net.UDPConn,
	peers []config.Host,
	windowSize int,
	sendInterval, logInterval time.Duration,
	encode link.Encoder[M],
	decode link.Decoder[M],
	upcall Upcall[M],
	out *logger.EventLog,
	log logrus.FieldLogger,
) *Node[M] {
	n := &Node[M]{
		SelfID:       selfID,
		conn:         conn,
		log:          log,
		out:          out,
		links:        make(map[uint64]*link.Link[M], len(peers)),
		addrIndex:    make(map[string]uint64, len(peers)),
		encode:       encode,
		decode:       decode,
		upcall:       upcall,
		sendInterval: sendInterval,
		logInterval:  logInterval,
	}
	for _, h := range peers {
		addr := &net.UDPAddr{IP: h.IP, Port: h.Port}
		l := link.New(h.ID, addr, conn, windowSize, encode, decode, log)
		n.links[h.ID] = l
		n.addrIndex[addr.String()] = h.ID
	}
	return n
}

// SetUpcall wires the listener's first-time-message target. Use this
// when the upcall target itself needs n as a broadcaster (urb.New and
// lattice.NewManager both take a broadcaster built from the node),
// which would otherwise make New and its upcall argument mutually
// dependent at construction time.
func (n *Node[M]) SetUpcall(u Upcall[M]) {
	n.upcall = u
}

// EnqueueToAll enqueues msg on every link but exceptPeer (pass 0, never a
// valid 1-indexed id, to relay to everyone). Satisfies urb.Broadcaster
// when M is wire.URBMessage.
func (n *Node[M]) EnqueueToAll(msg M, exceptPeer uint64) {
	for peerID, l := range n.links {
		if peerID == exceptPeer {
			continue
		}
		l.Enqueue(msg)
	}
}

// SendToPeer enqueues msg on the single link to peerID, silently
// dropping it if peerID is not a known peer (defensive against a stale
// sender id; never expected to trigger in a fixed-membership run).
func (n *Node[M]) SendToPeer(peerID uint64, msg M) {
	if l, ok := n.links[peerID]; ok {
		l.Enqueue(msg)
	}
}

// Start launches the sender, listener and logger workers. It returns
// immediately; workers run until Stop is called.
func (n *Node[M]) Start() {
	n.running.Store(true)
	n.wg.Add(3)
	go n.senderLoop()
	go n.listenerLoop()
	go n.loggerLoop()
}

// Stop flips the run flag, closes the socket to unblock the listener's
// blocking recvfrom, and joins every worker. Safe to call once.
func (n *Node[M]) Stop() {
	n.running.Store(false)
	n.conn.Close()
	n.wg.Wait()
}

func (n *Node[M]) senderLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.sendInterval)
	defer ticker.Stop()
	for n.running.Load() {
		<-ticker.C
		if !n.running.Load() {
			return
		}
		for _, l := range n.links {
			l.Send()
		}
	}
}

func (n *Node[M]) loggerLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.logInterval)
	defer ticker.Stop()
	for n.running.Load() {
		<-ticker.C
		if err := n.out.Flush(); err != nil {
			n.log.WithError(err).Warn("event log flush failed")
		}
	}
}

// listenerLoop blocks in ReadFromUDP until a datagram arrives or the
// socket is closed by Stop, which is how the kernel-receive suspension
// point in spec.md §5 is unblocked.
func (n *Node[M]) listenerLoop() {
	defer n.wg.Done()
	buf := make([]byte, 65536)
	for {
		size, addr, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if !n.running.Load() {
				return
			}
			n.log.WithError(err).Debug("recvfrom failed")
			continue
		}
		peerID, ok := n.addrIndex[addr.String()]
		if !ok {
			n.log.WithField("addr", addr.String()).Warn("datagram from unknown peer, dropping")
			continue
		}
		l, ok := n.links[peerID]
		if !ok {
			continue
		}

		p, err := wire.DecodePacket(buf[:size], n.decode)
		if err != nil {
			atomic.AddUint64(&n.recvErrors, 1)
			n.log.WithError(err).WithField("peer", peerID).Debug("dropping corrupt packet")
			continue
		}

		flags := l.Receive(p)
		for i, firstTime := range flags {
			if firstTime {
				n.upcall.OnReceiveLinkMessage(peerID, p.Messages[i])
			}
		}
	}
}

// RecvErrors returns the cumulative count of corrupt inbound packets
// dropped, for diagnostics.
func (n *Node[M]) RecvErrors() uint64 {
	return atomic.LoadUint64(&n.recvErrors)
}

// DialSelf resolves and binds the UDP socket for self among hosts,
// returning the bound connection and the peer list (every host but
// self), in hosts-file order.
func DialSelf(hosts *config.HostsTable, selfID uint64) (*net.UDPConn, []config.Host, error) {
	self, ok := hosts.Self(selfID)
	if !ok {
		return nil, nil, fmt.Errorf("node: id %d not present in hosts table", selfID)
	}
	addr := &net.UDPAddr{IP: self.IP, Port: self.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("node: bind %s: %w", addr, err)
	}
	return conn, hosts.Peers(selfID), nil
}
