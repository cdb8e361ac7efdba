package testutils

import (
	randv2 "math/rand/v2"
	"testing"
)

// RandomFrames returns n frames of frameSize random bytes each. None of the
// frames is all zeroes, so they can be told apart from silence.
func RandomFrames(t testing.TB, rng *randv2.Rand, n, frameSize int) [][]byte {
	t.Helper()
	if rng == nil {
		rng = randv2.New(randv2.NewPCG(randv2.Uint64(), randv2.Uint64()))
	}
	res := make([][]byte, n)
	for i := range res {
		b := make([]byte, frameSize)
		for j := range b {
			b[j] = byte(rng.Uint32())
		}
		b[0] |= 0x01
		res[i] = b
	}
	return res
}
