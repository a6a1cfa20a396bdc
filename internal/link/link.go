// Package link implements the perfect-link abstraction: per-neighbor
// sliding-window retransmission, cumulative ACKs and duplicate
// suppression over a shared UDP socket.
package link

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dyv-paxos/latticebroadcast/internal/concurrent"
	"github.com/dyv-paxos/latticebroadcast/internal/wire"
)

// Encoder appends the wire encoding of a message to buf, matching
// wire.EncodeURBMessage/wire.EncodeLAMessage.
type Encoder[M any] func(M, []byte) ([]byte, error)

// Decoder reads one message from the front of buf and returns the
// remainder, matching wire.DecodeURBMessage/wire.DecodeLAMessage.
type Decoder[M any] func([]byte) (M, []byte, error)

// Link is one ordered (self, neighbor) perfect link, replacing the
// source's Port/SenderPort/ReceiverPort class hierarchy with a single
// value-type composed of a sender half and a receiver half; the two
// halves have disjoint operations and need no virtual dispatch.
type Link[M any] struct {
	PeerID uint64

	addr *net.UDPAddr
	conn *net.UDPConn
	log  logrus.FieldLogger

	windowSize int
	encode     Encoder[M]
	decode     Decoder[M]

	nextPktSeq uint32 // sender half: strictly increasing, assigned at enqueue; starts at 1, 0 is the sliding-set sentinel

	seqMu   sync.Mutex
	queue   *concurrent.Deque[M]
	pending *concurrent.Map[uint32, M] // bounded: refilled only via Complete

	delivered *concurrent.SlidingSet[uint32] // receiver half

	sendErrors uint64
}

// New returns a Link to peerID at addr, sharing conn with every other link
// on the node.
func New[M any](peerID uint64, addr *net.UDPAddr, conn *net.UDPConn, windowSize int, encode Encoder[M], decode Decoder[M], log logrus.FieldLogger) *Link[M] {
	return &Link[M]{
		PeerID:     peerID,
		addr:       addr,
		conn:       conn,
		log:        log.WithField("peer", peerID),
		windowSize: windowSize,
		encode:     encode,
		decode:     decode,
		queue:      concurrent.NewDeque[M](),
		pending:    concurrent.NewBoundedMap[uint32, M](windowSize * wire.MaxMessagesPerPacket),
		delivered:  concurrent.NewSlidingSet[uint32](0),
		nextPktSeq: 1,
	}
}

// Enqueue appends msg to the outbound FIFO. It never blocks; backpressure
// against queue growth is the caller's responsibility.
func (l *Link[M]) Enqueue(msg M) {
	l.queue.PushBack(msg)
}

// QueueLen reports the outbound queue depth, for backpressure decisions.
func (l *Link[M]) QueueLen() int {
	return l.queue.Len()
}

// Send refills pending from queue up to windowSize*MaxMessagesPerPacket
// entries, then emits up to windowSize datagrams of up to
// MaxMessagesPerPacket messages each, iterating the pending snapshot in
// ascending pkt_seq order. A sendto failure is logged and skipped; it
// never aborts the loop, and the message stays in pending for the next
// tick.
func (l *Link[M]) Send() {
	l.refill()

	snapshot := l.pending.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	seqs := make([]uint32, 0, len(snapshot))
	for seq := range snapshot {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	datagrams := 0
	for i := 0; i < len(seqs) && datagrams < l.windowSize; i += wire.MaxMessagesPerPacket {
		end := i + wire.MaxMessagesPerPacket
		if end > len(seqs) {
			end = len(seqs)
		}
		batchSeqs := seqs[i:end]
		batchMessages := make([]M, len(batchSeqs))
		for j, seq := range batchSeqs {
			batchMessages[j] = snapshot[seq]
		}
		p := wire.NewMESPacket(batchSeqs, batchMessages)
		l.sendPacket(p)
		datagrams++
	}
}

func (l *Link[M]) refill() {
	l.seqMu.Lock()
	defer l.seqMu.Unlock()

	room := l.windowSize*wire.MaxMessagesPerPacket - l.pending.Size()
	if room <= 0 {
		return
	}
	popped := l.queue.PopFrontK(room)
	if len(popped) == 0 {
		return
	}
	entries := concurrent.NewDeque[concurrent.Entry[uint32, M]]()
	for _, msg := range popped {
		seq := l.nextPktSeq
		l.nextPktSeq++
		entries.PushBack(concurrent.Entry[uint32, M]{Key: seq, Value: msg})
	}
	l.pending.Complete(entries)
}

func (l *Link[M]) sendPacket(p wire.Packet[M]) {
	buf, err := wire.EncodePacket(p, l.encode)
	if err != nil {
		l.log.WithError(err).Error("encode outbound packet")
		return
	}
	if _, err := l.conn.WriteToUDP(buf, l.addr); err != nil {
		atomic.AddUint64(&l.sendErrors, 1)
		l.log.WithError(err).Debug("sendto failed, will retry next tick")
	}
}

// Receive processes one inbound packet already addressed to this link. For
// a MES packet it runs the receiver-side dedupe, always re-ACKs (even on
// pure duplicates, since that's how a lost ACK is recovered), and returns
// the per-message first-time flags. For an ACK packet it removes the
// acknowledged entries from pending and returns nil.
func (l *Link[M]) Receive(p wire.Packet[M]) []bool {
	if p.Type == wire.ACK {
		l.pending.EraseAll(p.Seqs)
		return nil
	}

	flags := l.delivered.InsertBulk(p.Seqs)
	ack := p.ToAck()
	l.sendPacket(ack)
	return flags
}

// SendErrors returns the cumulative count of failed sendto calls.
func (l *Link[M]) SendErrors() uint64 {
	return atomic.LoadUint64(&l.sendErrors)
}
