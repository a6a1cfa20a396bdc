package wire

import (
	"reflect"
	"testing"
)

func TestURBMessageRoundTrip(t *testing.T) {
	want := URBMessage{Seq: 42, Origin: 7}
	buf := want.Encode(nil)
	if len(buf) != URBMessageSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), URBMessageSize)
	}
	got, rest, err := DecodeURBMessage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLAMessageRoundTrip(t *testing.T) {
	want := LAMessage{Type: NACK, Round: 3, Proposed: []uint32{1, 2, 5, 9}}
	buf, err := want.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != want.EncodedSize() {
		t.Fatalf("encoded size = %d, want %d", len(buf), want.EncodedSize())
	}
	got, rest, err := DecodeLAMessage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if got.Type != want.Type || got.Round != want.Round || !reflect.DeepEqual(got.Proposed, want.Proposed) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLAMessageEmptyProposalRoundTrip(t *testing.T) {
	want := LAMessage{Type: ACK, Round: 1}
	buf, err := want.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, _, err := DecodeLAMessage(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Proposed) != 0 {
		t.Fatalf("got %d proposals, want 0", len(got.Proposed))
	}
}

func TestLAMessageToAckToNack(t *testing.T) {
	m := LAMessage{Type: MES, Round: 4, Proposed: []uint32{1, 2}}
	ack := m.ToAck()
	if ack.Type != ACK || ack.Round != m.Round || len(ack.Proposed) != 0 {
		t.Fatalf("ToAck produced %+v", ack)
	}
	nack := m.ToNack([]uint32{1, 2, 3})
	if nack.Type != NACK || nack.Round != m.Round || !reflect.DeepEqual(nack.Proposed, []uint32{1, 2, 3}) {
		t.Fatalf("ToNack produced %+v", nack)
	}
}

func TestPacketMESRoundTrip(t *testing.T) {
	seqs := []uint32{10, 11, 12}
	messages := []URBMessage{{Seq: 1, Origin: 1}, {Seq: 2, Origin: 1}, {Seq: 1, Origin: 2}}
	p := NewMESPacket(seqs, messages)

	buf, err := EncodePacket(p, EncodeURBMessage)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePacket(buf, DecodeURBMessage)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != MES || !reflect.DeepEqual(got.Seqs, seqs) || !reflect.DeepEqual(got.Messages, messages) {
		t.Fatalf("got %+v, want seqs=%v messages=%v", got, seqs, messages)
	}
}

func TestPacketACKRoundTripAndToAck(t *testing.T) {
	mesSeqs := []uint32{5, 6}
	mes := NewMESPacket(mesSeqs, []URBMessage{{Seq: 1, Origin: 9}, {Seq: 2, Origin: 9}})
	ack := mes.ToAck()
	if ack.Type != ACK || !reflect.DeepEqual(ack.Seqs, mesSeqs) || len(ack.Messages) != 0 {
		t.Fatalf("ToAck produced %+v", ack)
	}

	buf, err := EncodePacket(ack, EncodeURBMessage)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePacket(buf, DecodeURBMessage)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != ACK || !reflect.DeepEqual(got.Seqs, mesSeqs) || len(got.Messages) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodePacketRejectsOverCountAsCorrupt(t *testing.T) {
	buf := []byte{byte(MES), 9}
	for i := 0; i < 9; i++ {
		buf = append(buf, 0, 0, 0, byte(i))
	}
	if _, err := DecodePacket(buf, DecodeURBMessage); err != ErrCorrupt {
		t.Fatalf("got err %v, want ErrCorrupt", err)
	}
}

func TestDecodePacketRejectsTruncation(t *testing.T) {
	buf := []byte{byte(MES), 2, 0, 0, 0, 1}
	if _, err := DecodePacket(buf, DecodeURBMessage); err != ErrCorrupt {
		t.Fatalf("got err %v, want ErrCorrupt", err)
	}
}

func TestDecodePacketRejectsBadType(t *testing.T) {
	buf := []byte{7, 1, 0, 0, 0, 1}
	if _, err := DecodePacket(buf, DecodeURBMessage); err != ErrCorrupt {
		t.Fatalf("got err %v, want ErrCorrupt", err)
	}
}

func TestLAPacketRoundTrip(t *testing.T) {
	seqs := []uint32{1}
	messages := []LAMessage{{Type: MES, Round: 0, Proposed: []uint32{1, 2, 3}}}
	p := NewMESPacket(seqs, messages)
	buf, err := EncodePacket(p, EncodeLAMessage)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePacket(buf, DecodeLAMessage)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Messages, messages) {
		t.Fatalf("got %+v, want %+v", got.Messages, messages)
	}
}

func TestLAEntryRoundTrip(t *testing.T) {
	want := LAEntry{Instance: 99, Message: LAMessage{Type: NACK, Round: 2, Proposed: []uint32{4, 5}}}
	buf, err := EncodeLAEntry(want, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, rest, err := DecodeLAEntry(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("leftover bytes: %d", len(rest))
	}
	if got.Instance != want.Instance || got.Message.Type != want.Message.Type ||
		got.Message.Round != want.Message.Round || !reflect.DeepEqual(got.Message.Proposed, want.Message.Proposed) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestLAEntryPacketRoundTrip(t *testing.T) {
	seqs := []uint32{1, 2}
	entries := []LAEntry{
		{Instance: 1, Message: LAMessage{Type: MES, Round: 0, Proposed: []uint32{1}}},
		{Instance: 2, Message: LAMessage{Type: MES, Round: 0, Proposed: []uint32{2, 3}}},
	}
	p := NewMESPacket(seqs, entries)
	buf, err := EncodePacket(p, EncodeLAEntry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePacket(buf, DecodeLAEntry)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got.Messages, entries) {
		t.Fatalf("got %+v, want %+v", got.Messages, entries)
	}
}

func TestDecodeLAEntryRejectsTruncatedInstance(t *testing.T) {
	if _, _, err := DecodeLAEntry([]byte{0, 0, 1}); err == nil {
		t.Fatalf("expected error on truncated instance field")
	}
}
