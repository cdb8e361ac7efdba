package trip

import (
	"context"
	"errors"
	"fmt"
	randv2 "math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/companyzero/udptrip/internal/audio"
	"github.com/companyzero/udptrip/internal/logutil"
	"github.com/companyzero/udptrip/internal/ringbuf"
	"github.com/companyzero/udptrip/internal/seqtracker"
	"github.com/companyzero/udptrip/rpc"
	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// AudioBinding is the duplex audio device that drives a session. Once
// started, cb is called once per period with the captured audio and the
// buffer to fill with the audio to play.
type AudioBinding interface {
	SampleRate() uint32
	PeriodFrames() uint32
	Channels() int
	Start(cb audio.DataProc) error
	Stop() error
}

// Session streams the audio of a binding to a peer and plays the audio
// received from the peer.
//
// A session runs three routines: the audio callback (owned by the binding),
// the transmit worker and the receive worker. The send buffer is written by
// the audio callback and read by the transmit worker. The receive buffer is
// written by the receive worker and read by the audio callback.
type Session struct {
	cfg     config
	log     slog.Logger
	binding AudioBinding

	header       rpc.PacketHeader
	format       audio.Format
	frameSize    int
	send         *ringbuf.Buffer
	recv         *ringbuf.Buffer
	adapter      *audio.CallbackAdapter
	tracker      *seqtracker.Tracker
	conn         net.PacketConn
	ownsConn     bool
	peer         peerEndpoint
	tx           *transmitWorker
	rx           *receiveWorker
	stats        *stats
	audioRunning atomic.Bool

	mtx       sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	cancelAux context.CancelFunc
	auxGroup  *errgroup.Group

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

// NewSession creates a new session driven by the audio binding. No routines
// are started until StartThreads is called.
//
// Configuration errors are returned as *ConfigError, and nothing is
// constructed in that case.
func NewSession(binding AudioBinding, opts ...Option) (*Session, error) {
	cfg := fillConfig(opts...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, errors.New("audio binding not specified")
	}
	if binding.Channels() != cfg.channels {
		return nil, makeConfigError("channels", fmt.Errorf("%w: binding "+
			"has %d, configured %d", ErrChannelMismatch,
			binding.Channels(), cfg.channels))
	}

	bitRes, _ := rpc.ParseBitResolution(cfg.bitResBits)
	header, err := rpc.NewPacketHeader(binding.SampleRate(), bitRes, cfg.channels)
	if err != nil {
		return nil, makeConfigError("header", err)
	}
	periodFrames := binding.PeriodFrames()
	if periodFrames < 1 {
		return nil, errors.New("audio binding has no frames per period")
	}
	format := audio.Format{
		SampleRate:   header.SampleRate,
		Channels:     cfg.channels,
		BitRes:       bitRes,
		PeriodFrames: int(periodFrames),
	}
	frameSize := header.PayloadSize(int(periodFrames))

	send, err := ringbuf.New(cfg.sendQueue, frameSize)
	if err != nil {
		return nil, err
	}
	recv, err := ringbuf.New(cfg.recvQueue, frameSize)
	if err != nil {
		return nil, err
	}
	plugins := audio.NewPluginChain(cfg.plugins...)
	adapter, err := audio.NewCallbackAdapter(audio.AdapterConfig{
		Format:  format,
		Send:    send,
		Recv:    recv,
		Plugins: plugins,
		Log:     cfg.log,
	})
	if err != nil {
		return nil, err
	}

	// Resolve the peer before binding, so that resolution failures do
	// not leave a bound socket behind.
	var peerAddr *net.UDPAddr
	if cfg.mode == ModeClient {
		hostport := net.JoinHostPort(cfg.peerHost, strconv.Itoa(cfg.peerPort))
		peerAddr, err = net.ResolveUDPAddr("udp", hostport)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve peer %s: %w", hostport, err)
		}
	}

	conn, ownsConn := cfg.conn, false
	if conn == nil {
		laddr := &net.UDPAddr{Port: cfg.localPort}
		if cfg.localHost != "" {
			if laddr.IP = net.ParseIP(cfg.localHost); laddr.IP == nil {
				return nil, makeConfigError("local address",
					fmt.Errorf("not an IP address: %q", cfg.localHost))
			}
		}
		conn, err = net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("unable to bind UDP socket: %w", err)
		}
		ownsConn = true
	}

	if cfg.mode == ModeLoopback {
		local := asUDPAddr(conn.LocalAddr())
		if local == nil {
			if ownsConn {
				conn.Close()
			}
			return nil, fmt.Errorf("unable to determine local address %s", conn.LocalAddr())
		}
		peerAddr = &net.UDPAddr{IP: local.IP, Port: local.Port, Zone: local.Zone}
		if peerAddr.IP == nil || peerAddr.IP.IsUnspecified() {
			peerAddr.IP = net.IPv4(127, 0, 0, 1)
		}
	}

	pktz, err := rpc.NewPacketizer(header, randv2.Uint32(),
		uint16(randv2.Uint32()), periodFrames)
	if err != nil {
		if ownsConn {
			conn.Close()
		}
		return nil, err
	}

	tracker := new(seqtracker.Tracker)
	st := newStats(statsSources{send: send, recv: recv, adapter: adapter, tracker: tracker})

	s := &Session{
		cfg:       cfg,
		log:       cfg.log,
		binding:   binding,
		header:    header,
		format:    format,
		frameSize: frameSize,
		send:      send,
		recv:      recv,
		adapter:   adapter,
		tracker:   tracker,
		conn:      conn,
		ownsConn:  ownsConn,
		stats:     st,
		done:      make(chan struct{}),
	}
	if peerAddr != nil {
		s.peer.latch(peerAddr)
	}
	s.tx = &transmitWorker{
		worker: newWorker("transmit", cfg.priority, cfg.log),
		send:   send,
		pktz:   pktz,
		conn:   conn,
		peer:   &s.peer,
		stats:  st,
		frame:  make([]byte, frameSize),
	}
	s.rx = &receiveWorker{
		worker:    newWorker("receive", cfg.priority, cfg.log),
		conn:      conn,
		recv:      recv,
		header:    header,
		frameSize: frameSize,
		timeout:   cfg.recvTimeout,
		peer:      &s.peer,
		tracker:   tracker,
		stats:     st,
		buf:       make([]byte, maxDatagramSize),
	}
	s.tx.warn = logutil.Sampler{Log: s.tx.log, Verbose: cfg.verbose}
	s.rx.warn = logutil.Sampler{Log: s.rx.log, Verbose: cfg.verbose}

	s.log.Infof("Session %s on %s (%s), frame size %d bytes, "+
		"receive queue %d", cfg.mode, conn.LocalAddr(), header, frameSize,
		cfg.recvQueue)
	if plugins.Len() > 0 {
		s.log.Debugf("Capture plugins: %s", strings.Join(plugins.Names(), ", "))
	}
	if peerAddr != nil {
		s.log.Infof("Streaming with peer %s", peerAddr)
	}
	return s, nil
}

// finish records the result of the workers and closes the done channel.
func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// runPrometheusListener runs the Prometheus metrics endpoint in the given
// address.
func (s *Session) runPrometheusListener(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	promHandler := promhttp.InstrumentMetricHandler(
		s.stats.reg, promhttp.HandlerFor(s.stats.reg, promhttp.HandlerOpts{}),
	)
	mux.Handle("/metrics", promHandler)
	hs := http.Server{
		Addr:        addr,
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     mux,
	}
	s.log.Infof("Exposing prometheus metrics on %s", addr)
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}()
	err := hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartThreads starts delivery of audio callbacks and the network workers.
// It may only be called once. The session runs until ctx is done, Close is
// called or an unrecoverable socket error happens. Use Done to be notified
// of the end of the session.
func (s *Session) StartThreads(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	if err := s.binding.Start(s.adapter.Process); err != nil {
		s.finish(err)
		return fmt.Errorf("unable to start audio: %w", err)
	}
	s.audioRunning.Store(true)

	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(wctx)
	g.Go(func() error { return s.tx.run(gctx, s.tx.loop) })
	g.Go(func() error { return s.rx.run(gctx, s.rx.loop) })
	go func() {
		err := g.Wait()
		if err != nil {
			s.log.Errorf("Session failed: %v", err)
		}
		s.finish(err)
	}()

	actx, cancelAux := context.WithCancel(ctx)
	s.cancelAux = cancelAux
	s.auxGroup = &errgroup.Group{}
	if s.cfg.promAddr != "" {
		s.auxGroup.Go(func() error {
			err := s.runPrometheusListener(actx, s.cfg.promAddr)
			if err != nil {
				s.log.Warnf("Prometheus listener failed: %v", err)
			}
			return nil
		})
	}
	s.auxGroup.Go(func() error {
		s.runReportStatsLoop(actx, s.cfg.statsReportInterval)
		return nil
	})
	return nil
}

// RunningRoutines returns the number of session routines (audio callback,
// transmit and receive workers) that are running.
func (s *Session) RunningRoutines() int {
	var n int
	if s.audioRunning.Load() {
		n++
	}
	if s.tx.live() {
		n++
	}
	if s.rx.live() {
		n++
	}
	return n
}

// Done is closed when the workers of the session have stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the unrecoverable error that ended the session, if any. It
// returns nil before Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close stops the workers, then the audio callbacks, and releases the socket
// (if it was bound by the session). It is safe to call Close multiple times.
func (s *Session) Close() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mtx.Unlock()

	s.tx.Stop()
	s.rx.Stop()
	var err error
	if started {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.tx.Done()
		<-s.rx.Done()
		if s.audioRunning.Load() {
			if stopErr := s.binding.Stop(); stopErr != nil {
				err = fmt.Errorf("unable to stop audio: %w", stopErr)
			}
			s.audioRunning.Store(false)
		}
		if s.cancelAux != nil {
			s.cancelAux()
			s.auxGroup.Wait()
		}
	} else {
		s.finish(nil)
	}

	if s.ownsConn {
		if closeErr := s.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	<-s.done
	s.log.Debugf("Session closed")
	return err
}

// FrameSize is the size in bytes of the frames exchanged with the peer.
func (s *Session) FrameSize() int { return s.frameSize }

// Header is the header of every packet of the session.
func (s *Session) Header() rpc.PacketHeader { return s.header }

// Format is the audio format of the session.
func (s *Session) Format() audio.Format { return s.format }

// LocalAddr is the local address of the socket.
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// PeerAddr is the address of the peer. It is nil in server mode until the
// first valid packet is received.
func (s *Session) PeerAddr() *net.UDPAddr { return s.peer.load() }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.stats.snapshot(statsSources{
		send:    s.send,
		recv:    s.recv,
		adapter: s.adapter,
		tracker: s.tracker,
	})
}

// udpConn returns the underlying UDP conn, if the session socket is one.
func (s *Session) udpConn() *net.UDPConn {
	uc, _ := s.conn.(*net.UDPConn)
	return uc
}
