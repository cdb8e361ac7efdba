package rpc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the size of an encoded PacketHeader.
const HeaderSize = 6

// PacketHeader describes the parameters of an audio stream. It is built once
// per session and sent along with every audio packet, so the receiver can
// verify the packet was produced with the same parameters it will be played
// with.
//
// Encoding (big endian):
//
//	[0:4] sample rate
//	[4]   bit resolution
//	[5]   channel count
type PacketHeader struct {
	SampleRate uint32
	BitRes     BitResolution
	Channels   uint8
}

// NewPacketHeader validates the stream parameters and returns the
// corresponding header.
func NewPacketHeader(sampleRate uint32, bitRes BitResolution, channels int) (PacketHeader, error) {
	if sampleRate == 0 {
		return PacketHeader{}, ErrInvalidSampleRate
	}
	if !bitRes.IsValid() {
		return PacketHeader{}, fmt.Errorf("%w: %d", ErrInvalidBitResolution, bitRes)
	}
	if channels < 1 || channels > math.MaxUint8 {
		return PacketHeader{}, fmt.Errorf("%w: %d (must be 1-%d)",
			ErrInvalidChannelCount, channels, math.MaxUint8)
	}
	return PacketHeader{
		SampleRate: sampleRate,
		BitRes:     bitRes,
		Channels:   uint8(channels),
	}, nil
}

// Encode encodes the header into b.
func (h PacketHeader) Encode(b []byte) error {
	if len(b) < HeaderSize {
		return ErrShortBuffer
	}
	binary.BigEndian.PutUint32(b, h.SampleRate)
	b[4] = byte(h.BitRes)
	b[5] = h.Channels
	return nil
}

// DecodePacketHeader decodes a header from b. The decoded values are not
// validated.
func DecodePacketHeader(b []byte) (PacketHeader, error) {
	if len(b) < HeaderSize {
		return PacketHeader{}, ErrShortBuffer
	}
	return PacketHeader{
		SampleRate: binary.BigEndian.Uint32(b),
		BitRes:     BitResolution(b[4]),
		Channels:   b[5],
	}, nil
}

// FrameBytes is the number of bytes of one audio frame (one sample of every
// channel).
func (h PacketHeader) FrameBytes() int {
	return int(h.Channels) * h.BitRes.BytesPerSample()
}

// PayloadSize is the size of the payload of packets that carry periodFrames
// audio frames.
func (h PacketHeader) PayloadSize(periodFrames int) int {
	return periodFrames * h.FrameBytes()
}

// Matches returns an error if the other header describes a stream that is not
// compatible with this one.
func (h PacketHeader) Matches(other PacketHeader) error {
	switch {
	case h.SampleRate != other.SampleRate:
		return fmt.Errorf("%w: sample rate %d != %d", ErrHeaderMismatch,
			other.SampleRate, h.SampleRate)
	case h.BitRes != other.BitRes:
		return fmt.Errorf("%w: bit resolution %d != %d", ErrHeaderMismatch,
			other.BitRes, h.BitRes)
	case h.Channels != other.Channels:
		return fmt.Errorf("%w: channels %d != %d", ErrHeaderMismatch,
			other.Channels, h.Channels)
	}
	return nil
}

func (h PacketHeader) String() string {
	return fmt.Sprintf("%dHz/%s/%dch", h.SampleRate, h.BitRes, h.Channels)
}
