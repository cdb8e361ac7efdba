package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/companyzero/udptrip/internal/audio"
	"github.com/companyzero/udptrip/internal/version"
	"github.com/companyzero/udptrip/rpc"
	"github.com/companyzero/udptrip/trip"
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

func listDevices(log slog.Logger) error {
	devices, err := audio.ListAudioDevices(log)
	if err != nil {
		return err
	}
	fmt.Println("Capture devices:")
	for _, d := range devices.Capture {
		def := ""
		if d.IsDefault {
			def = " (default)"
		}
		fmt.Printf("  %s%s\n      id: %s\n", d.Name, def, d.ID)
	}
	fmt.Println("Playback devices:")
	for _, d := range devices.Playback {
		def := ""
		if d.IsDefault {
			def = " (default)"
		}
		fmt.Printf("  %s%s\n      id: %s\n", d.Name, def, d.ID)
	}
	return nil
}

func realMain() error {
	// Settings.
	cfg, err := obtainSettings(os.Args[1:], os.Stdout)
	if err != nil {
		return err
	}

	// Log.
	logBackend := &logBackend{
		stdOut: os.Stdout,
	}
	if cfg.LogFile != "" {
		logDir := filepath.Dir(cfg.LogFile)
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logRotator, err := rotator.New(cfg.LogFile, 1024, false, maxLogFiles)
		if err != nil {
			return fmt.Errorf("failed to create file rotator: %w", err)
		}
		logBackend.logRotator = logRotator
	}
	defer logBackend.Close()

	logBknd := slog.NewBackend(logBackend)
	log := logBknd.Logger("MAIN")
	tripLog := logBknd.Logger("TRIP")
	audioLog := logBknd.Logger("AUDI")
	logLevel, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.DebugLevel)
	}
	log.SetLevel(logLevel)
	tripLog.SetLevel(logLevel)
	audioLog.SetLevel(logLevel)

	if cfg.ListDevices {
		return listDevices(audioLog)
	}

	log.Infof("Running udptrip version %s", version.String())
	for _, arg := range cfg.IgnoredArgs {
		log.Warnf("Argument %q has no effect and will be ignored", arg)
	}

	// Main context.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Audio.
	if cfg.CaptureDevice != "" && !cfg.NullAudio &&
		audio.FindDevice(audio.DeviceTypeCapture, audio.DeviceID(cfg.CaptureDevice)) == nil {
		log.Warnf("Capture device %q not found (see --listdevices)", cfg.CaptureDevice)
	}
	if cfg.PlaybackDevice != "" && !cfg.NullAudio &&
		audio.FindDevice(audio.DeviceTypePlayback, audio.DeviceID(cfg.PlaybackDevice)) == nil {
		log.Warnf("Playback device %q not found (see --listdevices)", cfg.PlaybackDevice)
	}
	bitRes, err := rpc.ParseBitResolution(cfg.BitRes)
	if err != nil {
		return err
	}
	binding, err := audio.NewBinding(audio.BindingConfig{
		CaptureDevice:  audio.DeviceID(cfg.CaptureDevice),
		PlaybackDevice: audio.DeviceID(cfg.PlaybackDevice),
		SampleRate:     cfg.SampleRate,
		PeriodFrames:   cfg.PeriodFrames,
		Channels:       cfg.NumChannels,
		BitRes:         bitRes,
		Realtime:       cfg.Priority == trip.PriorityElevated,
		Clock:          cfg.NullAudio,
	}, audioLog)
	if err != nil {
		return err
	}
	defer binding.Close()
	log.Infof("Using %s audio at %d Hz, %d frames per period",
		binding.Backend(), binding.SampleRate(), binding.PeriodFrames())

	// Socket.
	laddr := &net.UDPAddr{Port: cfg.Port}
	socket, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("unable to bind to port %d: %v", cfg.Port, err)
	}
	defer socket.Close()
	checkKernelUDPBufferSize(socket, log)

	// Session options.
	opts := []trip.Option{
		trip.WithLogger(tripLog),
		trip.WithTransport(cfg.Transport),
		trip.WithPacketConn(socket),
		trip.WithPeerPort(cfg.PeerPort),
		trip.WithChannels(cfg.NumChannels),
		trip.WithBitResolution(cfg.BitRes),
		trip.WithReceiveQueue(cfg.Queue),
		trip.WithPriority(cfg.Priority),
		trip.WithVerbose(cfg.Verbose),
		trip.WithPrometheusListenAddr(cfg.ListenPrometheus),
		trip.WithReportStatsInterval(cfg.StatsInterval),
	}
	switch cfg.Mode {
	case trip.ModeServer:
		opts = append(opts, trip.WithServerMode())
		log.Infof("Waiting for a peer on port %d", cfg.Port)
	case trip.ModeClient:
		opts = append(opts, trip.WithClientMode(cfg.PeerHost))
	case trip.ModeLoopback:
		opts = append(opts, trip.WithLoopbackMode())
	}
	if cfg.GainDB != 0 {
		gain, err := audio.NewGainPlugin(cfg.GainDB)
		if err != nil {
			return err
		}
		opts = append(opts, trip.WithPlugins(gain))
		log.Infof("Applying %.1fdB of gain to captured audio", cfg.GainDB)
	}

	// Session.
	sess, err := trip.NewSession(binding, opts...)
	if err != nil {
		return err
	}
	if err := sess.StartThreads(ctx); err != nil {
		sess.Close()
		return err
	}

	<-sess.Done()
	if ctx.Err() != nil {
		log.Infof("Interrupt detected. Shutting down.")
	}
	closeErr := sess.Close()
	if err := sess.Err(); err != nil {
		return err
	}
	return closeErr
}

func main() {
	err := realMain()
	if err != nil && !errors.Is(err, errNothingToDo) {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
}
