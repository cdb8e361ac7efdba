package trip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/companyzero/udptrip/internal/logutil"
	"github.com/companyzero/udptrip/internal/ringbuf"
	"github.com/companyzero/udptrip/internal/seqtracker"
	"github.com/companyzero/udptrip/rpc"
	"github.com/pion/rtp"
)

// maxDatagramSize is the size of the read buffer. Datagrams larger than the
// frame size are dropped, but must be read whole.
const maxDatagramSize = 1 << 16

// receiveWorker is the single producer of the receive buffer. It validates
// every inbound datagram and writes the payload of the accepted ones.
type receiveWorker struct {
	worker

	conn      net.PacketConn
	recv      *ringbuf.Buffer
	header    rpc.PacketHeader
	frameSize int
	timeout   time.Duration
	peer      *peerEndpoint
	tracker   *seqtracker.Tracker
	stats     *stats
	warn      logutil.Sampler

	// The following are only accessed from the worker goroutine.
	buf      []byte
	pkt      rtp.Packet
	ssrc     uint32
	haveSSRC bool
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func (rw *receiveWorker) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := rw.conn.SetReadDeadline(time.Now().Add(rw.timeout))
		if err != nil && errors.Is(err, net.ErrClosed) {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive socket closed: %w", err)
		}

		n, from, err := rw.conn.ReadFrom(rw.buf)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case isTimeout(err):
				continue
			case errors.Is(err, net.ErrClosed):
				return fmt.Errorf("receive socket closed: %w", err)
			}
			count := rw.stats.readErrors.Add(1)
			rw.warn.Warnf(count, "Error reading from socket: %v", err)
			continue
		}

		rw.handleDatagram(rw.buf[:n], asUDPAddr(from))
	}
}

// dropped counts and logs a discarded datagram.
func (rw *receiveWorker) dropped(r dropReason, from *net.UDPAddr, err error) {
	count := rw.stats.drop(r)
	if err != nil {
		rw.warn.Warnf(count, "Dropped %s packet from %s: %v", r, from, err)
	} else {
		rw.warn.Warnf(count, "Dropped %s packet from %s", r, from)
	}
}

// handleDatagram validates a datagram and writes its payload to the receive
// buffer.
func (rw *receiveWorker) handleDatagram(b []byte, from *net.UDPAddr) {
	peer := rw.peer.load()
	if from == nil || (peer != nil && !sameAddr(peer, from)) {
		rw.dropped(dropForeign, from, nil)
		return
	}

	hdr, err := rpc.ParsePacket(b, &rw.pkt)
	switch {
	case errors.Is(err, rpc.ErrMissingHeader):
		rw.dropped(dropNoHeader, from, err)
		return
	case err != nil:
		rw.dropped(dropMalformed, from, err)
		return
	}
	if err := rw.header.Matches(hdr); err != nil {
		rw.dropped(dropMismatch, from, err)
		return
	}
	if len(rw.pkt.Payload) != rw.frameSize {
		rw.dropped(dropSize, from, fmt.Errorf("payload size %d, want %d",
			len(rw.pkt.Payload), rw.frameSize))
		return
	}

	if peer == nil {
		if !rw.peer.latch(from) {
			rw.dropped(dropForeign, from, nil)
			return
		}
		rw.log.Infof("Streaming with peer %s", from)
	}

	if !rw.haveSSRC || rw.pkt.SSRC != rw.ssrc {
		if rw.haveSSRC {
			rw.log.Infof("Peer %s restarted its stream (SSRC %08x)",
				from, rw.pkt.SSRC)
			rw.tracker.Reset()
		}
		rw.ssrc, rw.haveSSRC = rw.pkt.SSRC, true
	}

	switch v, _ := rw.tracker.Track(rw.pkt.SequenceNumber); v {
	case seqtracker.Accept:
	case seqtracker.Late:
		rw.dropped(dropLate, from, nil)
		return
	case seqtracker.Duplicate:
		rw.dropped(dropDuplicate, from, nil)
		return
	default:
		rw.dropped(dropStale, from, nil)
		return
	}

	if _, err := rw.recv.Write(rw.pkt.Payload); err != nil {
		// Should not happen since the size was checked.
		rw.dropped(dropSize, from, err)
		return
	}
	rw.stats.pktsRead.Add(1)
	rw.stats.bytesRead.Add(uint64(len(b)))
}
