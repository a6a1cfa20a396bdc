package wire

import (
	"encoding/binary"
	"fmt"
)

// MessageType is the single byte tag shared by Packet framing (where only
// MES and ACK occur) and LA Message framing (where all three occur),
// mirroring the source's one MessageType enum used at both levels.
type MessageType uint8

const (
	MES MessageType = iota
	ACK
	NACK
)

func (t MessageType) String() string {
	switch t {
	case MES:
		return "MES"
	case ACK:
		return "ACK"
	case NACK:
		return "NACK"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// URBMessage is the fixed-size broadcast payload: seq (u32 BE) || origin
// (u64 BE). Grounded on message.hpp's Message(msg_seq_t, proc_id_t).
type URBMessage struct {
	Seq    uint32
	Origin uint64
}

// URBMessageSize is the fixed wire size of a URBMessage.
const URBMessageSize = 4 + 8

// Encode appends the big-endian encoding of m to buf and returns the
// extended slice.
func (m URBMessage) Encode(buf []byte) []byte {
	var tmp [URBMessageSize]byte
	binary.BigEndian.PutUint32(tmp[0:4], m.Seq)
	binary.BigEndian.PutUint64(tmp[4:12], m.Origin)
	return append(buf, tmp[:]...)
}

// DecodeURBMessage reads a URBMessage from the front of buf, returning the
// remaining, unconsumed bytes.
func DecodeURBMessage(buf []byte) (URBMessage, []byte, error) {
	if len(buf) < URBMessageSize {
		return URBMessage{}, nil, fmt.Errorf("wire: truncated URB message")
	}
	m := URBMessage{
		Seq:    binary.BigEndian.Uint32(buf[0:4]),
		Origin: binary.BigEndian.Uint64(buf[4:12]),
	}
	return m, buf[URBMessageSize:], nil
}

// LAMessage is the lattice-agreement payload: type (u8) || round (u32 BE)
// || size (u16 BE) || size * proposal (u32 BE). The instance number
// travels at the Packet level, not here — see SPEC_FULL.md §13.
type LAMessage struct {
	Type     MessageType
	Round    uint32
	Proposed []uint32
}

// Encode appends the big-endian encoding of m to buf. It returns an error
// if the proposal set exceeds MaxProposalSetSize.
func (m LAMessage) Encode(buf []byte) ([]byte, error) {
	if len(m.Proposed) > MaxProposalSetSize {
		return nil, fmt.Errorf("wire: LA proposal set of %d exceeds max %d", len(m.Proposed), MaxProposalSetSize)
	}
	var head [1 + 4 + 2]byte
	head[0] = byte(m.Type)
	binary.BigEndian.PutUint32(head[1:5], m.Round)
	binary.BigEndian.PutUint16(head[5:7], uint16(len(m.Proposed)))
	buf = append(buf, head[:]...)
	for _, v := range m.Proposed {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

// EncodedSize returns the number of bytes Encode would append.
func (m LAMessage) EncodedSize() int {
	return 1 + 4 + 2 + 4*len(m.Proposed)
}

// DecodeLAMessage reads an LAMessage from the front of buf, returning the
// remaining, unconsumed bytes.
func DecodeLAMessage(buf []byte) (LAMessage, []byte, error) {
	if len(buf) < 7 {
		return LAMessage{}, nil, fmt.Errorf("wire: truncated LA message header")
	}
	m := LAMessage{
		Type:  MessageType(buf[0]),
		Round: binary.BigEndian.Uint32(buf[1:5]),
	}
	size := binary.BigEndian.Uint16(buf[5:7])
	if int(size) > MaxProposalSetSize {
		return LAMessage{}, nil, fmt.Errorf("wire: LA proposal set size %d exceeds max %d", size, MaxProposalSetSize)
	}
	buf = buf[7:]
	if len(buf) < int(size)*4 {
		return LAMessage{}, nil, fmt.Errorf("wire: truncated LA proposal values")
	}
	m.Proposed = make([]uint32, size)
	for i := range m.Proposed {
		m.Proposed[i] = binary.BigEndian.Uint32(buf[i*4 : i*4+4])
	}
	return m, buf[int(size)*4:], nil
}

// ToAck returns a new Message acknowledging round, carrying an empty
// proposal set, per Message::toAck.
func (m LAMessage) ToAck() LAMessage {
	return LAMessage{Type: ACK, Round: m.Round}
}

// ToNack returns a new Message rejecting round, carrying the acceptor's
// full (merged) accepted set, per Message::toNack.
func (m LAMessage) ToNack(accepted []uint32) LAMessage {
	return LAMessage{Type: NACK, Round: m.Round, Proposed: accepted}
}

// LAEntry pairs an LAMessage with the lattice instance it belongs to.
// Per SPEC_FULL.md §13's resolution of spec.md's open question, instance
// travels at the packet entry level rather than inside LAMessage's own
// encoding, so LAMessage stays exactly type||round||size||values.
type LAEntry struct {
	Instance uint32
	Message  LAMessage
}

// EncodeLAEntry appends instance (u32 BE) followed by the LAMessage
// encoding. It adapts to the Encoder[LAEntry] signature Link/Packet want.
func EncodeLAEntry(e LAEntry, buf []byte) ([]byte, error) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], e.Instance)
	buf = append(buf, b[:]...)
	return e.Message.Encode(buf)
}

// DecodeLAEntry reads an LAEntry from the front of buf, returning the
// remainder.
func DecodeLAEntry(buf []byte) (LAEntry, []byte, error) {
	if len(buf) < 4 {
		return LAEntry{}, nil, fmt.Errorf("wire: truncated LA entry instance")
	}
	instance := binary.BigEndian.Uint32(buf[0:4])
	msg, rest, err := DecodeLAMessage(buf[4:])
	if err != nil {
		return LAEntry{}, nil, err
	}
	return LAEntry{Instance: instance, Message: msg}, rest, nil
}
