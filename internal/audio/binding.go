package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/companyzero/udptrip/rpc"
	"github.com/decred/slog"
)

const (
	// DefaultSampleRate is used when no sample rate is configured.
	DefaultSampleRate = 48000

	// DefaultPeriodFrames is the default number of frames per callback.
	DefaultPeriodFrames = 128
)

var (
	errAlreadyStarted = errors.New("audio binding already started")
	errNotStarted     = errors.New("audio binding not started")
	errClosed         = errors.New("audio binding closed")
)

// BindingConfig is the configuration of a duplex audio Binding.
type BindingConfig struct {
	CaptureDevice  DeviceID
	PlaybackDevice DeviceID

	// SampleRate is the requested sample rate. Zero selects
	// DefaultSampleRate.
	SampleRate uint32

	// PeriodFrames is the number of frames delivered per callback. Zero
	// selects DefaultPeriodFrames.
	PeriodFrames uint32

	Channels int
	BitRes   rpc.BitResolution

	// Realtime requests the backend processing thread to run at realtime
	// priority.
	Realtime bool

	// Clock selects the software clock backend instead of an audio
	// device. The clock delivers silence as captured audio and discards
	// played audio.
	Clock bool
}

// Binding is a duplex audio device. A single callback registered with Start
// is invoked once per period with the captured audio and a buffer to fill
// with the audio to play.
type Binding struct {
	log    slog.Logger
	actx   audioContext
	dev    duplexDevice
	format Format

	cb atomic.Pointer[DataProc]

	mtx     sync.Mutex
	started bool
	closed  bool
}

// NewBinding opens the audio device described by cfg.
func NewBinding(cfg BindingConfig, log slog.Logger) (*Binding, error) {
	var actx audioContext
	var err error
	if cfg.Clock || newAudioContext == nil {
		actx = newClockContext()
	} else {
		actx, err = newAudioContext(cfg.Realtime)
		if err != nil {
			return nil, fmt.Errorf("unable to init audio context: %w", err)
		}
	}

	b, err := newBinding(actx, cfg, log)
	if err != nil {
		_ = actx.free()
		return nil, err
	}
	return b, nil
}

func newBinding(actx audioContext, cfg BindingConfig, log slog.Logger) (*Binding, error) {
	if log == nil {
		log = slog.Disabled
	}
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", cfg.Channels)
	}
	if !cfg.BitRes.IsValid() {
		return nil, fmt.Errorf("%w: %d", rpc.ErrInvalidBitResolution, cfg.BitRes)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = DefaultPeriodFrames
	}

	b := &Binding{
		log:  log,
		actx: actx,
		format: Format{
			SampleRate:   cfg.SampleRate,
			Channels:     cfg.Channels,
			BitRes:       cfg.BitRes,
			PeriodFrames: int(cfg.PeriodFrames),
		},
	}

	devCfg := deviceConfig{
		captureID:  cfg.CaptureDevice,
		playbackID: cfg.PlaybackDevice,
		format:     b.format,
	}
	dev, err := actx.initDuplex(devCfg, b.dispatch)
	if err != nil {
		return nil, fmt.Errorf("unable to init %s duplex device: %w", actx.name(), err)
	}
	b.dev = dev
	if sr := dev.SampleRate(); sr != 0 {
		b.format.SampleRate = sr
	}

	log.Infof("Initialized %s audio device (%d Hz, %d channels, %s, "+
		"%d frames per period, %s period)", actx.name(),
		b.format.SampleRate, b.format.Channels, b.format.BitRes,
		b.format.PeriodFrames, b.format.Period())
	return b, nil
}

// Backend is the name of the audio backend.
func (b *Binding) Backend() string { return b.actx.name() }

// SampleRate is the sample rate of the device.
func (b *Binding) SampleRate() uint32 { return b.format.SampleRate }

// PeriodFrames is the number of frames delivered on each callback.
func (b *Binding) PeriodFrames() uint32 { return uint32(b.format.PeriodFrames) }

// Channels is the number of capture and playback channels.
func (b *Binding) Channels() int { return b.format.Channels }

// Format is the format of the audio exchanged with the device.
func (b *Binding) Format() Format { return b.format }

// dispatch is the callback registered with the device.
func (b *Binding) dispatch(out, in []byte, framecount uint32) {
	cb := b.cb.Load()
	if cb == nil {
		clear(out)
		return
	}

	// Devices use unsigned 8 bit samples.
	is8bit := b.format.BitRes == rpc.BitRes8
	if is8bit {
		flipSignBit8(in)
	}
	(*cb)(out, in, framecount)
	if is8bit {
		flipSignBit8(out)
	}
}

// Start registers cb and starts delivery of callbacks.
func (b *Binding) Start(cb DataProc) error {
	if cb == nil {
		return errors.New("nil audio callback")
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()
	switch {
	case b.closed:
		return errClosed
	case b.started:
		return errAlreadyStarted
	}

	b.cb.Store(&cb)
	if err := b.dev.Start(); err != nil {
		b.cb.Store(nil)
		return fmt.Errorf("unable to start audio device: %w", err)
	}
	b.started = true
	b.log.Debugf("Started audio device")
	return nil
}

// Stop stops delivery of callbacks. After Stop returns, the registered
// callback is no longer invoked.
func (b *Binding) Stop() error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if !b.started {
		return errNotStarted
	}
	err := b.dev.Stop()
	b.cb.Store(nil)
	b.started = false
	b.log.Debugf("Stopped audio device")
	return err
}

// Close stops the device (if needed) and releases all its resources.
func (b *Binding) Close() error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var stopErr error
	if b.started {
		stopErr = b.dev.Stop()
		b.cb.Store(nil)
		b.started = false
	}
	b.dev.Uninit()
	return errors.Join(stopErr, b.actx.free())
}
