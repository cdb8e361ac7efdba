package rpc

import (
	"bytes"
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
	"github.com/pion/rtp"
)

// TestPacketizerRoundTrip asserts packets produced by a Packetizer are parsed
// back into the same header and payload, with sequence numbers and
// timestamps advancing per packet.
func TestPacketizerRoundTrip(t *testing.T) {
	t.Parallel()

	const periodFrames = 32
	h, err := NewPacketHeader(48000, BitRes16, 2)
	assert.NilErr(t, err)
	p, err := NewPacketizer(h, 0xdeadbeef, 65534, periodFrames)
	assert.NilErr(t, err)

	payload := make([]byte, h.PayloadSize(periodFrames))
	var pkt rtp.Packet
	for i := 0; i < 4; i++ {
		for j := range payload {
			payload[j] = byte(i + j)
		}

		b, err := p.Marshal(payload)
		assert.NilErr(t, err)

		gotHeader, err := ParsePacket(b, &pkt)
		assert.NilErr(t, err)
		assert.DeepEqual(t, gotHeader, h)
		assert.DeepEqual(t, pkt.SSRC, uint32(0xdeadbeef))
		assert.DeepEqual(t, pkt.SequenceNumber, uint16(65534+i))
		assert.DeepEqual(t, pkt.Timestamp, uint32(i*periodFrames))
		if !bytes.Equal(pkt.Payload, payload) {
			t.Fatalf("unexpected payload in packet %d", i)
		}
	}
	assert.DeepEqual(t, p.NextSequence(), uint16(2))
}

func TestParsePacketErrors(t *testing.T) {
	t.Parallel()

	noExt := rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: PayloadType,
		},
		Payload: []byte{1, 2, 3, 4},
	}
	noExtBytes, err := noExt.Marshal()
	assert.NilErr(t, err)

	wrongPT := noExt
	wrongPT.PayloadType = 0
	wrongPTBytes, err := wrongPT.Marshal()
	assert.NilErr(t, err)

	var pkt rtp.Packet
	_, err = ParsePacket(noExtBytes, &pkt)
	assert.ErrorIs(t, err, ErrMissingHeader)

	_, err = ParsePacket(wrongPTBytes, &pkt)
	assert.ErrorIs(t, err, ErrUnknownPayloadType)

	_, err = ParsePacket([]byte{0x80, 0x60}, &pkt)
	assert.NonNilErr(t, err)
}
