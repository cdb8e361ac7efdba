package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/companyzero/udptrip/internal/version"
	"github.com/companyzero/udptrip/rpc"
	"github.com/companyzero/udptrip/trip"
	"github.com/jessevdk/go-flags"
	"github.com/vaughan0/go-ini"
	strduration "github.com/xhit/go-str2duration/v2"
)

const maxLogFiles = 10

// errNothingToDo is returned when the command line only requested
// information (usage or version) that was already printed.
var errNothingToDo = errors.New("nothing to do")

// usageError is a command line error. Usage was already printed.
type usageError struct {
	err error
}

func (err usageError) Error() string { return err.err.Error() }
func (err usageError) Unwrap() error { return err.err }

// cliOpts are the command line options.
type cliOpts struct {
	NumChannels int    `short:"n" long:"numchannels" default:"2" value-name:"N" description:"Number of input and output channels"`
	Server      bool   `short:"s" long:"server" description:"Run in server mode (wait for a peer)"`
	Client      string `short:"c" long:"client" value-name:"HOST" description:"Run in client mode, streaming with HOST"`
	Queue       int    `short:"q" long:"queue" default:"8" value-name:"N" description:"Receive queue length, in packets (1 or more)"`
	BitRes      int    `short:"b" long:"bitres" default:"16" value-name:"BITS" description:"Audio bit resolution (8, 16, 24 or 32)"`
	Loopback    bool   `short:"l" long:"loopback" description:"Run in loopback mode (stream through the local socket)"`
	Verbose     bool   `long:"verbose" description:"Log every transient error and debug messages"`

	Transport string `short:"t" long:"transport" default:"udp" choice:"udp" choice:"tcp" choice:"sctp" description:"Transport protocol"`
	Port      int    `short:"p" long:"port" default:"4464" description:"Local UDP port"`
	PeerPort  int    `long:"peerport" default:"4464" description:"UDP port of the peer"`
	Priority  string `long:"priority" default:"elevated" choice:"normal" choice:"elevated" description:"Scheduling priority of the streaming threads"`

	Gain           float64 `long:"gain" value-name:"DB" description:"Gain applied to captured audio, in dB"`
	NullAudio      bool    `long:"nullaudio" description:"Use a software clock instead of an audio device"`
	SampleRate     uint32  `long:"samplerate" default:"48000" description:"Audio sample rate"`
	Period         uint32  `long:"period" default:"128" value-name:"FRAMES" description:"Audio frames per callback (and per packet)"`
	CaptureDevice  string  `long:"capturedevice" value-name:"ID" description:"Capture device id (see --listdevices)"`
	PlaybackDevice string  `long:"playbackdevice" value-name:"ID" description:"Playback device id (see --listdevices)"`
	ListDevices    bool    `long:"listdevices" description:"List audio devices and exit"`

	ConfigFile       string `long:"cfg" value-name:"FILE" description:"Config file"`
	DebugLevel       string `long:"debuglevel" default:"info" description:"Log level (trace, debug, info, warn, error, critical)"`
	LogFile          string `long:"logfile" value-name:"FILE" description:"Log to FILE (in addition to stdout)"`
	ListenPrometheus string `long:"listenprometheus" value-name:"ADDR" description:"Expose Prometheus metrics on ADDR"`
	StatsInterval    string `long:"statsinterval" default:"10s" description:"Interval to log stats (empty or 0 disables)"`
	Version          bool   `long:"version" description:"Show version and exit"`
}

type settings struct {
	Mode        trip.Mode
	PeerHost    string
	NumChannels int
	Queue       int
	BitRes      int
	Verbose     bool

	Transport rpc.Transport
	Port      int
	PeerPort  int
	Priority  trip.Priority

	GainDB         float64
	NullAudio      bool
	SampleRate     uint32
	PeriodFrames   uint32
	CaptureDevice  string
	PlaybackDevice string
	ListDevices    bool

	LogFile          string
	DebugLevel       string
	ListenPrometheus string
	StatsInterval    time.Duration

	// IgnoredArgs are positional arguments that have no effect.
	IgnoredArgs []string
}

func defaultConfigFile() string {
	usr, err := user.Current()
	if err != nil {
		return ""
	}
	return filepath.Join(usr.HomeDir, ".udptrip", "udptrip.conf")
}

// setInCLI returns true if the option was specified in the command line
// (instead of taking its default value).
func setInCLI(parser *flags.Parser, long string) bool {
	opt := parser.FindOptionByLongName(long)
	return opt != nil && opt.IsSet() && !opt.IsSetDefault()
}

func newParser(opts *cliOpts) *flags.Parser {
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "udptrip"
	parser.Usage = "[-s|-c host|-l] [options]"
	return parser
}

// loadConfigFile fills opts with the values of the config file that were not
// specified in the command line.
func loadConfigFile(parser *flags.Parser, opts *cliOpts, filename string) error {
	cfg, err := ini.LoadFile(filename)
	if err != nil {
		return err
	}

	var fileErr error
	get := func(s *string, section, field string) {
		if setInCLI(parser, field) {
			return
		}
		if v, ok := cfg.Get(section, field); ok {
			*s = v
		}
	}
	getInt := func(i *int, section, field string) {
		var s string
		get(&s, section, field)
		if s == "" {
			return
		}
		v, err := strconv.Atoi(s)
		if err != nil && fileErr == nil {
			fileErr = fmt.Errorf("invalid %s.%s: %v", section, field, err)
		}
		*i = v
	}
	getUint32 := func(u *uint32, section, field string) {
		var s string
		get(&s, section, field)
		if s == "" {
			return
		}
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil && fileErr == nil {
			fileErr = fmt.Errorf("invalid %s.%s: %v", section, field, err)
		}
		*u = uint32(v)
	}
	getFloat := func(f *float64, section, field string) {
		var s string
		get(&s, section, field)
		if s == "" {
			return
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil && fileErr == nil {
			fileErr = fmt.Errorf("invalid %s.%s: %v", section, field, err)
		}
		*f = v
	}
	getBool := func(b *bool, section, field string) {
		var s string
		get(&s, section, field)
		if s == "" {
			return
		}
		v, err := strconv.ParseBool(s)
		if err != nil && fileErr == nil {
			fileErr = fmt.Errorf("invalid %s.%s: %v", section, field, err)
		}
		*b = v
	}

	// audio section
	getInt(&opts.NumChannels, "audio", "numchannels")
	getInt(&opts.BitRes, "audio", "bitres")
	getUint32(&opts.SampleRate, "audio", "samplerate")
	getUint32(&opts.Period, "audio", "period")
	getFloat(&opts.Gain, "audio", "gain")
	getBool(&opts.NullAudio, "audio", "nullaudio")
	get(&opts.CaptureDevice, "audio", "capturedevice")
	get(&opts.PlaybackDevice, "audio", "playbackdevice")

	// network section
	get(&opts.Transport, "network", "transport")
	getInt(&opts.Port, "network", "port")
	getInt(&opts.PeerPort, "network", "peerport")
	getInt(&opts.Queue, "network", "queue")
	get(&opts.Priority, "network", "priority")

	// log section
	get(&opts.DebugLevel, "log", "debuglevel")
	get(&opts.LogFile, "log", "logfile")
	getBool(&opts.Verbose, "log", "verbose")
	get(&opts.StatsInterval, "log", "statsinterval")
	get(&opts.ListenPrometheus, "log", "listenprometheus")

	return fileErr
}

// obtainSettings parses the command line (args, without the program name) and
// config file. Usage is written to w when requested or when the command line
// is invalid.
func obtainSettings(args []string, w io.Writer) (*settings, error) {
	var opts cliOpts
	parser := newParser(&opts)
	printUsage := func() { parser.WriteHelp(w) }

	if len(args) == 0 {
		printUsage()
		return nil, errNothingToDo
	}

	rest, err := parser.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			printUsage()
			return nil, errNothingToDo
		}
		fmt.Fprintln(w, err)
		printUsage()
		return nil, usageError{err: err}
	}

	if opts.Version {
		fmt.Fprintf(w, "udptrip %s (%s)\n", version.String(), runtime.Version())
		return nil, errNothingToDo
	}

	// Config file. A missing default config file is not an error.
	cfgFile := opts.ConfigFile
	if cfgFile == "" {
		cfgFile = defaultConfigFile()
		if _, err := os.Stat(cfgFile); err != nil {
			cfgFile = ""
		}
	}
	if cfgFile != "" {
		if err := loadConfigFile(parser, &opts, cfgFile); err != nil {
			return nil, fmt.Errorf("unable to load config file %s: %w", cfgFile, err)
		}
	}

	s := &settings{
		PeerHost:         opts.Client,
		NumChannels:      opts.NumChannels,
		Queue:            opts.Queue,
		BitRes:           opts.BitRes,
		Verbose:          opts.Verbose,
		Port:             opts.Port,
		PeerPort:         opts.PeerPort,
		GainDB:           opts.Gain,
		NullAudio:        opts.NullAudio,
		SampleRate:       opts.SampleRate,
		PeriodFrames:     opts.Period,
		CaptureDevice:    opts.CaptureDevice,
		PlaybackDevice:   opts.PlaybackDevice,
		ListDevices:      opts.ListDevices,
		LogFile:          opts.LogFile,
		DebugLevel:       opts.DebugLevel,
		ListenPrometheus: opts.ListenPrometheus,
		IgnoredArgs:      rest,
	}
	if s.Verbose && !setInCLI(parser, "debuglevel") && s.DebugLevel == "info" {
		s.DebugLevel = "debug"
	}

	usageErr := func(format string, args ...interface{}) error {
		err := fmt.Errorf(format, args...)
		fmt.Fprintln(w, err)
		printUsage()
		return usageError{err: err}
	}

	if s.ListDevices {
		return s, nil
	}

	if s.Queue <= 0 {
		return nil, usageErr("--queue: the queue has to be a positive integer (got %d)", s.Queue)
	}
	if _, err := rpc.ParseBitResolution(s.BitRes); err != nil {
		return nil, usageErr("--bitres: %v", err)
	}
	if s.NumChannels < 1 || s.NumChannels > 255 {
		return nil, usageErr("--numchannels: must be between 1 and 255 (got %d)", s.NumChannels)
	}
	if s.Transport, err = rpc.ParseTransport(opts.Transport); err != nil {
		return nil, usageErr("--transport: %v", err)
	}
	if s.Priority, err = trip.ParsePriority(opts.Priority); err != nil {
		return nil, usageErr("--priority: %v", err)
	}
	if s.PeriodFrames == 0 {
		return nil, usageErr("--period: must be positive")
	}

	var nbModes int
	if opts.Server {
		s.Mode = trip.ModeServer
		nbModes++
	}
	if opts.Client != "" {
		s.Mode = trip.ModeClient
		nbModes++
	}
	if opts.Loopback {
		s.Mode = trip.ModeLoopback
		nbModes++
	}
	if nbModes != 1 {
		return nil, usageErr("exactly one of -s, -c or -l must be specified")
	}

	switch opts.StatsInterval {
	case "", "0":
	default:
		interval, err := strduration.ParseDuration(opts.StatsInterval)
		if err != nil {
			return nil, fmt.Errorf("unable to parse stats interval duration: %v", err)
		}
		s.StatsInterval = interval
	}

	return s, nil
}
