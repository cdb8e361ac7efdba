package trip

import (
	"context"
	"net"

	"github.com/companyzero/udptrip/internal/logutil"
	"github.com/companyzero/udptrip/internal/ringbuf"
	"github.com/companyzero/udptrip/rpc"
)

// transmitWorker is the single consumer of the send buffer. It sends every
// captured frame to the peer as one packet.
type transmitWorker struct {
	worker

	send  *ringbuf.Buffer
	pktz  *rpc.Packetizer
	conn  net.PacketConn
	peer  *peerEndpoint
	stats *stats
	warn  logutil.Sampler

	// frame is only accessed from the worker goroutine.
	frame []byte
}

func (tw *transmitWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tw.send.Ready():
		}

		for tw.send.TryRead(tw.frame) {
			tw.sendFrame(tw.frame)
		}
	}
}

// sendFrame sends a single frame to the peer. Failures are never fatal.
func (tw *transmitWorker) sendFrame(frame []byte) {
	peer := tw.peer.load()
	if peer == nil {
		// Server mode before the peer is known.
		tw.stats.noPeerDrops.Add(1)
		return
	}

	b, err := tw.pktz.Marshal(frame)
	if err != nil {
		count := tw.stats.sendErrors.Add(1)
		tw.warn.Warnf(count, "Unable to encode packet: %v", err)
		return
	}

	n, err := tw.conn.WriteTo(b, peer)
	if err != nil {
		count := tw.stats.sendErrors.Add(1)
		tw.warn.Warnf(count, "Unable to send packet to %s: %v", peer, err)
		return
	}
	tw.stats.pktsWritten.Add(1)
	tw.stats.bytesWritten.Add(uint64(n))
}
