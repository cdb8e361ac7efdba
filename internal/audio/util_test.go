package audio

import (
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
	"github.com/companyzero/udptrip/rpc"
)

// TestSampleCodec tests encoding and decoding samples at every resolution.
func TestSampleCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		bitRes  rpc.BitResolution
		v       float64
		encoded []byte
	}{
		{name: "8 bit zero", bitRes: rpc.BitRes8, v: 0, encoded: []byte{0x00}},
		{name: "8 bit half", bitRes: rpc.BitRes8, v: 0.5, encoded: []byte{0x40}},
		{name: "8 bit min", bitRes: rpc.BitRes8, v: -1, encoded: []byte{0x80}},
		{name: "16 bit half", bitRes: rpc.BitRes16, v: 0.5, encoded: []byte{0x00, 0x40}},
		{name: "16 bit neg half", bitRes: rpc.BitRes16, v: -0.5, encoded: []byte{0x00, 0xc0}},
		{name: "24 bit half", bitRes: rpc.BitRes24, v: 0.5, encoded: []byte{0x00, 0x00, 0x40}},
		{name: "24 bit min", bitRes: rpc.BitRes24, v: -1, encoded: []byte{0x00, 0x00, 0x80}},
		{name: "32 bit quarter", bitRes: rpc.BitRes32, v: 0.25, encoded: []byte{0x00, 0x00, 0x00, 0x20}},
		{name: "32 bit neg quarter", bitRes: rpc.BitRes32, v: -0.25, encoded: []byte{0x00, 0x00, 0x00, 0xe0}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := make([]byte, tc.bitRes.BytesPerSample())
			encodeSample(b, tc.bitRes, tc.v)
			assert.DeepEqual(t, b, tc.encoded)
			assert.DeepEqual(t, decodeSample(b, tc.bitRes), tc.v)
		})
	}
}

// TestSampleClipping asserts out of range values are clipped.
func TestSampleClipping(t *testing.T) {
	t.Parallel()

	b := make([]byte, 2)
	encodeSample(b, rpc.BitRes16, 2)
	assert.DeepEqual(t, b, []byte{0xff, 0x7f})
	encodeSample(b, rpc.BitRes16, -2)
	assert.DeepEqual(t, b, []byte{0x00, 0x80})

	b = make([]byte, 3)
	encodeSample(b, rpc.BitRes24, 1)
	assert.DeepEqual(t, b, []byte{0xff, 0xff, 0x7f})
}

func TestFlipSignBit8(t *testing.T) {
	t.Parallel()

	b := []byte{0x00, 0x80, 0xff, 0x7f}
	flipSignBit8(b)
	assert.DeepEqual(t, b, []byte{0x80, 0x00, 0x7f, 0xff})
}
