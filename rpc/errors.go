package rpc

import "errors"

var (
	// ErrInvalidBitResolution is returned when a sample bit resolution is
	// not one of 8, 16, 24 or 32.
	ErrInvalidBitResolution = errors.New("invalid bit resolution")

	// ErrUnsupportedTransport is returned for transports other than UDP.
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrInvalidChannelCount is returned when the channel count does not
	// fit in a packet header.
	ErrInvalidChannelCount = errors.New("invalid channel count")

	// ErrMissingHeader is returned when a packet does not carry the
	// stream header extension.
	ErrMissingHeader = errors.New("packet does not carry a stream header")

	// ErrHeaderMismatch is returned when the stream header of a packet
	// does not match the local one.
	ErrHeaderMismatch = errors.New("stream header mismatch")

	// ErrShortBuffer is returned when a buffer is too small to hold an
	// encoded value.
	ErrShortBuffer = errors.New("buffer too short")
)

var (
	// ErrInvalidSampleRate is returned when the sample rate is zero.
	ErrInvalidSampleRate = errors.New("invalid sample rate")

	// ErrUnknownPayloadType is returned for RTP packets that do not carry
	// raw audio frames.
	ErrUnknownPayloadType = errors.New("unknown RTP payload type")
)
