package rpc

import (
	"fmt"
	"strconv"
	"strings"
)

// BitResolution is the number of bits used to encode one audio sample.
type BitResolution uint8

const (
	BitRes8  BitResolution = 8
	BitRes16 BitResolution = 16
	BitRes24 BitResolution = 24
	BitRes32 BitResolution = 32
)

// ParseBitResolution converts a number of bits into a BitResolution.
func ParseBitResolution(bits int) (BitResolution, error) {
	res := BitResolution(bits)
	if bits < 0 || bits > 255 || !res.IsValid() {
		return 0, fmt.Errorf("%w: %d (must be 8, 16, 24 or 32)",
			ErrInvalidBitResolution, bits)
	}
	return res, nil
}

// IsValid returns true if this is one of the supported resolutions.
func (br BitResolution) IsValid() bool {
	switch br {
	case BitRes8, BitRes16, BitRes24, BitRes32:
		return true
	default:
		return false
	}
}

// BytesPerSample is the number of bytes used to encode one sample. Returns 0
// for invalid resolutions.
func (br BitResolution) BytesPerSample() int {
	if !br.IsValid() {
		return 0
	}
	return int(br) / 8
}

func (br BitResolution) String() string {
	return strconv.Itoa(int(br)) + "bit"
}

// Transport is the network transport used to carry audio packets. Only UDP
// is supported. The remaining values exist so that a selection of them is
// identified and rejected.
type Transport int

const (
	TransportUDP Transport = iota
	TransportTCP
	TransportSCTP
)

func (t Transport) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	case TransportSCTP:
		return "sctp"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// Supported returns nil if the transport can be used.
func (t Transport) Supported() error {
	if t == TransportUDP {
		return nil
	}
	return fmt.Errorf("%w: %s (only udp is implemented)",
		ErrUnsupportedTransport, t)
}

// ParseTransport parses the name of a transport. Known but unsupported
// transports are returned without error. Callers must check Supported().
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "udp", "":
		return TransportUDP, nil
	case "tcp":
		return TransportTCP, nil
	case "sctp":
		return TransportSCTP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedTransport, s)
	}
}
