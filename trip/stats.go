package trip

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/companyzero/udptrip/internal/audio"
	"github.com/companyzero/udptrip/internal/ringbuf"
	"github.com/companyzero/udptrip/internal/seqtracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UDPProcStats tracks kernel stats.
type UDPProcStats struct {
	TXQueue int
	RXQueue int
	Drops   int
}

// kernelStatsTracker is a tracker for kernel UDP stats. This is concretely
// defined on a per-OS basis.
type kernelStatsTracker interface {
	stats() (UDPProcStats, error)
}

// nullKernelStatsTracker does no tracking.
type nullKernelStatsTracker struct{}

func (nullKernelStatsTracker) stats() (UDPProcStats, error) {
	return UDPProcStats{}, nil
}

// dropReason is the reason an inbound datagram was discarded.
type dropReason int

const (
	dropForeign dropReason = iota
	dropMalformed
	dropNoHeader
	dropMismatch
	dropSize
	dropLate
	dropDuplicate
	dropStale
	numDropReasons
)

func (r dropReason) String() string {
	switch r {
	case dropForeign:
		return "foreign"
	case dropMalformed:
		return "malformed"
	case dropNoHeader:
		return "noheader"
	case dropMismatch:
		return "mismatch"
	case dropSize:
		return "size"
	case dropLate:
		return "late"
	case dropDuplicate:
		return "duplicate"
	case dropStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of the counters of a session.
type Stats struct {
	PacketsSent     uint64
	BytesSent       uint64
	SendErrors      uint64
	NoPeerDrops     uint64
	PacketsReceived uint64
	BytesReceived   uint64
	ReadErrors      uint64

	// Dropped is the number of discarded inbound datagrams, keyed by
	// reason.
	Dropped map[string]uint64

	Send     ringbuf.Stats
	Recv     ringbuf.Stats
	Adapter  audio.AdapterStats
	Sequence seqtracker.Stats
}

// TotalDropped is the total number of discarded inbound datagrams.
func (s Stats) TotalDropped() uint64 {
	var n uint64
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

// stats holds session statistics.
type stats struct {
	reg *prometheus.Registry

	pktsWritten  atomic.Uint64
	bytesWritten atomic.Uint64
	sendErrors   atomic.Uint64
	noPeerDrops  atomic.Uint64
	pktsRead     atomic.Uint64
	bytesRead    atomic.Uint64
	readErrors   atomic.Uint64
	drops        [numDropReasons]atomic.Uint64

	kernelRXQueue prometheus.Gauge
	kernelTXQueue prometheus.Gauge
	kernelDrops   prometheus.Gauge
}

// statsSources are the components whose counters are exported along with the
// session ones.
type statsSources struct {
	send    *ringbuf.Buffer
	recv    *ringbuf.Buffer
	adapter *audio.CallbackAdapter
	tracker *seqtracker.Tracker
}

func counterFunc(f promauto.Factory, name, help string, fn func() uint64) {
	f.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(fn()) })
}

func newStats(src statsSources) *stats {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	s := &stats{reg: reg}

	counterFunc(f, "udptrip_packets_written", "Total number of packets written", s.pktsWritten.Load)
	counterFunc(f, "udptrip_bytes_written", "Total bytes written", s.bytesWritten.Load)
	counterFunc(f, "udptrip_send_errors", "Count of failed packet writes", s.sendErrors.Load)
	counterFunc(f, "udptrip_no_peer_drops", "Count of frames discarded because the peer is not known", s.noPeerDrops.Load)
	counterFunc(f, "udptrip_packets_read", "Total number of packets read", s.pktsRead.Load)
	counterFunc(f, "udptrip_bytes_read", "Total bytes read", s.bytesRead.Load)
	counterFunc(f, "udptrip_read_errors", "Count of failed socket reads", s.readErrors.Load)
	for i := range s.drops {
		reason := dropReason(i)
		f.NewCounterFunc(prometheus.CounterOpts{
			Name:        "udptrip_dropped_packets",
			Help:        "Count of inbound packets dropped, by reason",
			ConstLabels: prometheus.Labels{"reason": reason.String()},
		}, func() float64 { return float64(s.drops[reason].Load()) })
	}

	for _, b := range []struct {
		dir string
		buf *ringbuf.Buffer
	}{{"send", src.send}, {"recv", src.recv}} {
		buf := b.buf
		labels := prometheus.Labels{"buffer": b.dir}
		f.NewCounterFunc(prometheus.CounterOpts{
			Name:        "udptrip_ringbuf_overruns",
			Help:        "Count of frames overwritten before being read",
			ConstLabels: labels,
		}, func() float64 { return float64(buf.Stats().Overruns) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Name:        "udptrip_ringbuf_underruns",
			Help:        "Count of reads from an empty buffer",
			ConstLabels: labels,
		}, func() float64 { return float64(buf.Stats().Underruns) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "udptrip_ringbuf_buffered",
			Help:        "Number of unread frames",
			ConstLabels: labels,
		}, func() float64 { return float64(buf.Buffered()) })
	}

	adapter, tracker := src.adapter, src.tracker
	counterFunc(f, "udptrip_audio_callbacks", "Total number of audio callbacks",
		func() uint64 { return adapter.Stats().Callbacks })
	counterFunc(f, "udptrip_audio_size_mismatches", "Count of audio callbacks with unexpected buffer sizes",
		func() uint64 { return adapter.Stats().SizeMismatches })
	counterFunc(f, "udptrip_lost_packets", "Count of packets skipped by the sequence numbers of the peer",
		func() uint64 { return tracker.Stats().Lost })
	counterFunc(f, "udptrip_seq_resyncs", "Count of sequence tracker resyncs",
		func() uint64 { return tracker.Stats().Resyncs })

	s.kernelRXQueue = f.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_rx_queue_size",
		Help: "Size of the kernel RX queue of the bound UDP socket",
	})
	s.kernelTXQueue = f.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_tx_queue_size",
		Help: "Size of the kernel TX queue of the bound UDP socket",
	})
	s.kernelDrops = f.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_packet_drops",
		Help: "Number of packets dropped by kernel",
	})
	return s
}

func (s *stats) drop(r dropReason) uint64 {
	return s.drops[r].Add(1)
}

func (s *stats) snapshot(src statsSources) Stats {
	res := Stats{
		PacketsSent:     s.pktsWritten.Load(),
		BytesSent:       s.bytesWritten.Load(),
		SendErrors:      s.sendErrors.Load(),
		NoPeerDrops:     s.noPeerDrops.Load(),
		PacketsReceived: s.pktsRead.Load(),
		BytesReceived:   s.bytesRead.Load(),
		ReadErrors:      s.readErrors.Load(),
		Dropped:         make(map[string]uint64, numDropReasons),
		Send:            src.send.Stats(),
		Recv:            src.recv.Stats(),
		Adapter:         src.adapter.Stats(),
		Sequence:        src.tracker.Stats(),
	}
	for i := range s.drops {
		if v := s.drops[i].Load(); v > 0 {
			res.Dropped[dropReason(i).String()] = v
		}
	}
	return res
}

// runReportStatsLoop runs a loop to report basic stats.
func (s *Session) runReportStatsLoop(ctx context.Context, reportInterval time.Duration) error {
	if reportInterval <= 0 {
		s.log.Debugf("Logging of stats is disabled")
		return nil
	}

	var ksTracker kernelStatsTracker = nullKernelStatsTracker{}
	if uc := s.udpConn(); uc != nil && !s.cfg.ignoreKernelStats {
		var err error
		ksTracker, err = initKernelStatsTracker(uc)
		if err != nil {
			s.log.Warnf("Unable to track kernel UDP stats: %v", err)
			ksTracker = nullKernelStatsTracker{}
		}
	}

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	var tickTime, lastTick time.Time
	tickTime = time.Now()

	s.log.Debugf("Running report stats loop with interval %s", reportInterval)

	var prev Stats
	var prevKernel UDPProcStats
	for {
		lastTick = tickTime

		select {
		case <-ctx.Done():
			return ctx.Err()
		case tickTime = <-ticker.C:
		}

		kstats, err := ksTracker.stats()
		if err == nil {
			s.stats.kernelRXQueue.Set(float64(kstats.RXQueue))
			s.stats.kernelTXQueue.Set(float64(kstats.TXQueue))
			s.stats.kernelDrops.Set(float64(kstats.Drops))
			if kstats.Drops > prevKernel.Drops {
				s.log.Warnf("Kernel dropped %d inbound packets (RX queue %s)",
					kstats.Drops-prevKernel.Drops, hbytes(uint64(kstats.RXQueue)))
			}
			prevKernel = kstats
		}

		cur := s.Stats()
		pktsRead := cur.PacketsReceived - prev.PacketsReceived
		pktsWritten := cur.PacketsSent - prev.PacketsSent
		bytesRead := cur.BytesReceived - prev.BytesReceived
		bytesWritten := cur.BytesSent - prev.BytesSent
		underruns := cur.Recv.Underruns - prev.Recv.Underruns
		overruns := (cur.Recv.Overruns + cur.Send.Overruns) -
			(prev.Recv.Overruns + prev.Send.Overruns)
		dropped := cur.TotalDropped() - prev.TotalDropped()
		lost := cur.Sequence.Lost - prev.Sequence.Lost
		prev = cur

		if bytesRead|bytesWritten|underruns|overruns|dropped == 0 {
			// Skip if there are no stats.
			continue
		}

		dt := tickTime.Sub(lastTick)
		if dt == 0 {
			continue // Should not happen.
		}
		dts := float64(dt.Milliseconds()) / 1000

		s.log.Infof("Stats for the last %s - "+
			"IN: %8s (%7sB/sec) %8s Pkt (%7s/sec) ; "+
			"OUT: %8s (%7sB/sec) %8s Pkt (%7s/sec)",
			dt.Round(time.Millisecond),
			hbytes(bytesRead), hrate(float64(bytesRead)/dts), hcount(pktsRead), hrate(float64(pktsRead)/dts),
			hbytes(bytesWritten), hrate(float64(bytesWritten)/dts), hcount(pktsWritten), hrate(float64(pktsWritten)/dts),
		)
		if underruns|overruns|dropped|lost != 0 {
			s.log.Infof("Stream health - underruns %s, overruns %s, "+
				"dropped %s, lost %s", hcount(underruns), hcount(overruns),
				hcount(dropped), hcount(lost))
		}
	}
}
