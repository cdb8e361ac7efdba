package trip

import (
	"net"
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
)

func TestHumanFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		got  string
		want string
	}{
		{hbytes(10), "10B"},
		{hbytes(1500), "1.50KB"},
		{hbytes(2_500_000), "2.50MB"},
		{hcount(999), "999"},
		{hcount(1000), "1.00K"},
		{hcount(3_000_000), "3.00M"},
		{hrate(12.5), "12.50"},
		{hrate(48000), "48.00K"},
	}
	for i, tc := range tests {
		if tc.got != tc.want {
			t.Fatalf("case %d: unexpected result: got %q, want %q", i,
				tc.got, tc.want)
		}
	}
}

func TestPeerEndpointLatch(t *testing.T) {
	t.Parallel()

	a := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1000}
	a2 := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1000}
	b := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1001}

	var pe peerEndpoint
	assert.BoolIs(t, pe.load() == nil, true)
	assert.BoolIs(t, pe.latch(a), true)
	assert.BoolIs(t, pe.latch(a2), true)
	assert.BoolIs(t, pe.latch(b), false)
	assert.BoolIs(t, sameAddr(pe.load(), a), true)
	assert.BoolIs(t, sameAddr(nil, a), false)
}
