package audio

import (
	"encoding/binary"
	"math"

	"github.com/companyzero/udptrip/rpc"
)

// decodeSample decodes the little endian, signed sample stored at the start
// of b into the [-1, 1) range.
func decodeSample(b []byte, br rpc.BitResolution) float64 {
	switch br {
	case rpc.BitRes8:
		return float64(int8(b[0])) / (1 << 7)
	case rpc.BitRes16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / (1 << 15)
	case rpc.BitRes24:
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		return float64(v) / (1 << 23)
	case rpc.BitRes32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
	default:
		return 0
	}
}

// encodeSample encodes v as a little endian, signed sample at the start of b.
// Values outside the [-1, 1) range are clipped.
func encodeSample(b []byte, br rpc.BitResolution, v float64) {
	if !br.IsValid() {
		return
	}
	scale := float64(int64(1) << (int(br) - 1))
	x := math.Round(v * scale)
	if x > scale-1 {
		x = scale - 1
	} else if x < -scale {
		x = -scale
	}
	i := int64(x)

	switch br {
	case rpc.BitRes8:
		b[0] = byte(int8(i))
	case rpc.BitRes16:
		binary.LittleEndian.PutUint16(b, uint16(int16(i)))
	case rpc.BitRes24:
		u := uint32(int32(i))
		b[0], b[1], b[2] = byte(u), byte(u>>8), byte(u>>16)
	case rpc.BitRes32:
		binary.LittleEndian.PutUint32(b, uint32(int32(i)))
	}
}

// flipSignBit8 converts 8 bit samples between the unsigned format used by
// devices and the signed format used everywhere else (where silence is all
// zeroes).
func flipSignBit8(b []byte) {
	for i := range b {
		b[i] ^= 0x80
	}
}

// gainFactorFromDB converts a gain in decibels to a linear factor.
func gainFactorFromDB(db float64) float64 {
	return math.Pow(10, db/20)
}
