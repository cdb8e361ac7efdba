package rpc

import (
	"fmt"

	"github.com/pion/rtp"
)

const (
	// PayloadType is the dynamic RTP payload type used for raw
	// interleaved PCM frames.
	PayloadType = 96

	// HeaderExtensionID is the id of the RTP one-byte header extension
	// that carries the encoded PacketHeader.
	HeaderExtensionID = 1
)

// Packetizer frames audio payloads into RTP packets. Every packet carries the
// stream header as an RTP header extension, a sequence number incremented by
// one per packet and a timestamp incremented by the number of audio frames
// in each packet.
//
// A Packetizer reuses its output buffer, so it is not safe for concurrent use
// and the result of Marshal is only valid until the next call.
type Packetizer struct {
	pkt     rtp.Packet
	hdrExt  [HeaderSize]byte
	tsDelta uint32
	buf     []byte
}

// NewPacketizer creates a packetizer for the stream described by h. Each
// packet advances the RTP timestamp by periodFrames.
func NewPacketizer(h PacketHeader, ssrc uint32, initialSeq uint16, periodFrames uint32) (*Packetizer, error) {
	p := &Packetizer{tsDelta: periodFrames}
	if err := h.Encode(p.hdrExt[:]); err != nil {
		return nil, err
	}
	p.pkt.Header = rtp.Header{
		Version:        2,
		PayloadType:    PayloadType,
		SequenceNumber: initialSeq,
		SSRC:           ssrc,
	}
	if err := p.pkt.Header.SetExtension(HeaderExtensionID, p.hdrExt[:]); err != nil {
		return nil, fmt.Errorf("unable to set header extension: %w", err)
	}
	return p, nil
}

// SSRC returns the synchronization source of the packets.
func (p *Packetizer) SSRC() uint32 { return p.pkt.SSRC }

// NextSequence returns the sequence number of the next packet.
func (p *Packetizer) NextSequence() uint16 { return p.pkt.SequenceNumber }

// Marshal frames payload into the next packet and returns its encoded bytes.
func (p *Packetizer) Marshal(payload []byte) ([]byte, error) {
	p.pkt.Payload = payload
	size := p.pkt.MarshalSize()
	if cap(p.buf) < size {
		p.buf = make([]byte, size)
	}
	n, err := p.pkt.MarshalTo(p.buf[:size])
	p.pkt.Payload = nil
	if err != nil {
		return nil, err
	}

	p.pkt.SequenceNumber++
	p.pkt.Timestamp += p.tsDelta
	return p.buf[:n], nil
}

// ParsePacket decodes an RTP packet from b into pkt and returns the stream
// header it carries. The payload of pkt references b.
func ParsePacket(b []byte, pkt *rtp.Packet) (PacketHeader, error) {
	if err := pkt.Unmarshal(b); err != nil {
		return PacketHeader{}, fmt.Errorf("invalid RTP packet: %w", err)
	}
	if pkt.PayloadType != PayloadType {
		return PacketHeader{}, fmt.Errorf("%w: %d", ErrUnknownPayloadType,
			pkt.PayloadType)
	}
	ext := pkt.GetExtension(HeaderExtensionID)
	if len(ext) < HeaderSize {
		return PacketHeader{}, ErrMissingHeader
	}
	return DecodePacketHeader(ext)
}
