package trip

import (
	"net"
	"strconv"
	"sync/atomic"
)

// hbytes == "human bytes"
func hbytes(i uint64) string {
	switch {
	case i < 1e3:
		return strconv.FormatUint(i, 10) + "B"
	case i < 1e6:
		return strconv.FormatFloat(float64(i)/1e3, 'f', 2, 64) + "KB"
	case i < 1e9:
		return strconv.FormatFloat(float64(i)/1e6, 'f', 2, 64) + "MB"
	case i < 1e12:
		return strconv.FormatFloat(float64(i)/1e9, 'f', 2, 64) + "GB"
	default:
		return strconv.FormatUint(i, 10) + "B"
	}
}

// hcount == "human count"
func hcount(i uint64) string {
	switch {
	case i < 1e3:
		return strconv.FormatUint(i, 10)
	case i < 1e6:
		return strconv.FormatFloat(float64(i)/1e3, 'f', 2, 64) + "K"
	case i < 1e9:
		return strconv.FormatFloat(float64(i)/1e6, 'f', 2, 64) + "M"
	default:
		return strconv.FormatUint(i, 10)
	}
}

// hrate == "human rate"
func hrate(f float64) string {
	switch {
	case f < 1e3:
		return strconv.FormatFloat(f, 'f', 2, 64)
	case f < 1e6:
		return strconv.FormatFloat(f/1e3, 'f', 2, 64) + "K"
	case f < 1e9:
		return strconv.FormatFloat(f/1e6, 'f', 2, 64) + "M"
	default:
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
}

// sameAddr returns true if a and b are the same UDP endpoint.
func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// peerEndpoint is the remote address of a session. It is written at most
// once after construction (when latching the peer in server mode) and read
// by both workers.
type peerEndpoint struct {
	addr atomic.Pointer[net.UDPAddr]
}

func (pe *peerEndpoint) load() *net.UDPAddr {
	return pe.addr.Load()
}

// latch sets the peer address if it was not set yet. Returns true if addr is
// now the peer.
func (pe *peerEndpoint) latch(addr *net.UDPAddr) bool {
	if pe.addr.CompareAndSwap(nil, addr) {
		return true
	}
	return sameAddr(pe.addr.Load(), addr)
}

// asUDPAddr converts a generic net.Addr to a UDP address.
func asUDPAddr(addr net.Addr) *net.UDPAddr {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a
	case nil:
		return nil
	default:
		ua, err := net.ResolveUDPAddr(addr.Network(), addr.String())
		if err != nil {
			return nil
		}
		return ua
	}
}
