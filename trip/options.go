package trip

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/companyzero/udptrip/internal/audio"
	"github.com/companyzero/udptrip/rpc"
	"github.com/decred/slog"
)

const (
	// DefaultPort is the default local and remote UDP port.
	DefaultPort = 4464

	// DefaultSendQueue is the depth of the send ring buffer. It is kept
	// shallow because the only producer is the local audio callback.
	DefaultSendQueue = 4

	// DefaultReceiveQueue is the default depth of the receive ring
	// buffer, which absorbs network jitter.
	DefaultReceiveQueue = 8

	// DefaultReceiveTimeout is the default read deadline of the receive
	// worker. Stop requests are observed within this interval.
	DefaultReceiveTimeout = 100 * time.Millisecond
)

// Mode determines how the peer of a session is found.
type Mode int

const (
	// ModeClient sends to (and receives from) a known peer host.
	ModeClient Mode = iota

	// ModeServer waits for the first valid packet and latches its
	// source as the peer.
	ModeServer

	// ModeLoopback sends to the local socket itself.
	ModeLoopback
)

func (m Mode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	case ModeLoopback:
		return "loopback"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Priority is the scheduling priority requested for the worker threads.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityElevated
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityElevated:
		return "elevated"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses "normal" or "elevated".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return PriorityNormal, nil
	case "elevated", "":
		return PriorityElevated, nil
	default:
		return 0, fmt.Errorf("unknown priority %q (must be normal or elevated)", s)
	}
}

// config determines a session config.
type config struct {
	log       slog.Logger
	transport rpc.Transport
	mode      Mode
	peerHost  string
	peerPort  int
	localPort int
	localHost string
	conn      net.PacketConn

	bitResBits int
	channels   int
	sendQueue  int
	recvQueue  int

	recvTimeout time.Duration
	priority    Priority
	plugins     []audio.Plugin

	// verbose enables logging of every transient error and dropped
	// packet, instead of a sample of them.
	verbose bool

	promAddr string

	// statsReportInterval is the interval to log stats. If zero, stats are
	// not logged.
	statsReportInterval time.Duration

	// ignoreKernelStats is set to true during testing to avoid wasting
	// time tracking kernel stats.
	ignoreKernelStats bool
}

// fillConfig fills a new config with the default config values, then applies
// all specified options.
func fillConfig(opts ...Option) config {
	cfg := config{
		log:                 slog.Disabled,
		transport:           rpc.TransportUDP,
		mode:                ModeClient,
		peerPort:            DefaultPort,
		localPort:           DefaultPort,
		bitResBits:          int(rpc.BitRes16),
		channels:            2,
		sendQueue:           DefaultSendQueue,
		recvQueue:           DefaultReceiveQueue,
		recvTimeout:         DefaultReceiveTimeout,
		priority:            PriorityElevated,
		statsReportInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// validate checks the config for fatal errors.
func (cfg *config) validate() error {
	if err := cfg.transport.Supported(); err != nil {
		return makeConfigError("transport", err)
	}
	if _, err := rpc.ParseBitResolution(cfg.bitResBits); err != nil {
		return makeConfigError("bit resolution", err)
	}
	if cfg.channels < 1 || cfg.channels > 255 {
		return makeConfigError("channels", fmt.Errorf("%w: %d (must be 1-255)",
			rpc.ErrInvalidChannelCount, cfg.channels))
	}
	if cfg.recvQueue < 1 {
		return makeConfigError("receive queue", fmt.Errorf("%w (got %d)",
			ErrInvalidQueueLength, cfg.recvQueue))
	}
	if cfg.sendQueue < 1 {
		return makeConfigError("send queue", fmt.Errorf("%w (got %d)",
			ErrInvalidQueueLength, cfg.sendQueue))
	}
	if cfg.conn == nil && (cfg.localPort < 0 || cfg.localPort > 65535) {
		return makeConfigError("local port", fmt.Errorf("%w: %d", ErrInvalidPort, cfg.localPort))
	}
	switch cfg.mode {
	case ModeClient:
		if cfg.peerHost == "" {
			return makeConfigError("peer", ErrMissingPeer)
		}
		if cfg.peerPort < 1 || cfg.peerPort > 65535 {
			return makeConfigError("peer port", fmt.Errorf("%w: %d", ErrInvalidPort, cfg.peerPort))
		}
	case ModeServer, ModeLoopback:
	default:
		return makeConfigError("mode", fmt.Errorf("%w: %s", ErrInvalidMode, cfg.mode))
	}
	if cfg.recvTimeout <= 0 {
		cfg.recvTimeout = DefaultReceiveTimeout
	}
	return nil
}

// Option is a functional session config option.
type Option func(c *config)

// WithLogger sets up the session to use the logger. Logger MUST NOT be nil.
func WithLogger(l slog.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithTransport sets the transport. Only UDP is supported.
func WithTransport(t rpc.Transport) Option {
	return func(c *config) {
		c.transport = t
	}
}

// WithClientMode sets up the session to stream with the given peer host.
func WithClientMode(peerHost string) Option {
	return func(c *config) {
		c.mode = ModeClient
		c.peerHost = peerHost
	}
}

// WithServerMode sets up the session to wait for a peer.
func WithServerMode() Option {
	return func(c *config) {
		c.mode = ModeServer
	}
}

// WithLoopbackMode sets up the session to stream to itself.
func WithLoopbackMode() Option {
	return func(c *config) {
		c.mode = ModeLoopback
	}
}

// WithPeerPort sets the remote UDP port.
func WithPeerPort(port int) Option {
	return func(c *config) {
		c.peerPort = port
	}
}

// WithLocalPort sets the local UDP port to bind to. Zero picks a random port.
func WithLocalPort(port int) Option {
	return func(c *config) {
		c.localPort = port
	}
}

// WithLocalHost sets the local address to bind to.
func WithLocalHost(host string) Option {
	return func(c *config) {
		c.localHost = host
	}
}

// WithPacketConn sets an already bound socket to use instead of binding a new
// one. The session does not close conns passed with this option.
func WithPacketConn(conn net.PacketConn) Option {
	return func(c *config) {
		c.conn = conn
	}
}

// WithChannels sets the number of audio channels.
func WithChannels(n int) Option {
	return func(c *config) {
		c.channels = n
	}
}

// WithBitResolution sets the sample bit resolution (8, 16, 24 or 32).
func WithBitResolution(bits int) Option {
	return func(c *config) {
		c.bitResBits = bits
	}
}

// WithReceiveQueue sets the depth of the receive ring buffer.
func WithReceiveQueue(depth int) Option {
	return func(c *config) {
		c.recvQueue = depth
	}
}

// WithSendQueue sets the depth of the send ring buffer.
func WithSendQueue(depth int) Option {
	return func(c *config) {
		c.sendQueue = depth
	}
}

// WithReceiveTimeout sets the read deadline of the receive worker.
func WithReceiveTimeout(d time.Duration) Option {
	return func(c *config) {
		c.recvTimeout = d
	}
}

// WithPriority sets the scheduling priority of the worker threads.
func WithPriority(p Priority) Option {
	return func(c *config) {
		c.priority = p
	}
}

// WithPlugins appends plugins to the processing chain of captured audio.
func WithPlugins(plugins ...audio.Plugin) Option {
	return func(c *config) {
		c.plugins = append(c.plugins, plugins...)
	}
}

// WithVerbose enables logging of every transient error.
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.verbose = verbose
	}
}

// WithPrometheusListenAddr sets the address to offer Prometheus metrics
// endpoint collection.
func WithPrometheusListenAddr(addr string) Option {
	return func(c *config) {
		c.promAddr = addr
	}
}

// WithReportStatsInterval sets the interval to log stats. If set to zero,
// reporting is disabled.
func WithReportStatsInterval(interval time.Duration) Option {
	return func(c *config) {
		c.statsReportInterval = interval
	}
}

// WithIgnoreKernelStats disables tracking kernel stats. Only useful for
// testing.
func WithIgnoreKernelStats() Option {
	return func(c *config) {
		c.ignoreKernelStats = true
	}
}
