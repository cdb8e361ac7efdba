package audio

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/decred/slog"
)

// FrameSink receives captured frames (the send ring buffer).
type FrameSink interface {
	Write(frame []byte) (overrun bool, err error)
}

// FrameSource provides frames to play (the receive ring buffer). Read must
// fill dst with silence when no frame is available.
type FrameSource interface {
	Read(dst []byte) (underrun bool, err error)
}

// AdapterConfig is the configuration for a CallbackAdapter.
type AdapterConfig struct {
	Format  Format
	Send    FrameSink
	Recv    FrameSource
	Plugins *PluginChain
	Log     slog.Logger
}

// AdapterStats are the running totals of a CallbackAdapter.
type AdapterStats struct {
	Callbacks      uint64
	SizeMismatches uint64
	BufferErrors   uint64
}

// CallbackAdapter bridges the audio device callback with the send and
// receive buffers. On every callback, the captured frame is run through the
// plugin chain and written to the send buffer and one frame is read from the
// receive buffer to be played.
type CallbackAdapter struct {
	format    Format
	frameSize int
	send      FrameSink
	recv      FrameSource
	plugins   *PluginChain
	log       slog.Logger

	// scratch is only accessed from the audio callback.
	scratch []byte

	callbacks      atomic.Uint64
	sizeMismatches atomic.Uint64
	bufferErrors   atomic.Uint64
}

// NewCallbackAdapter creates a new adapter. The plugin chain is initialized
// with the format of the stream.
func NewCallbackAdapter(cfg AdapterConfig) (*CallbackAdapter, error) {
	if cfg.Send == nil || cfg.Recv == nil {
		return nil, errors.New("send and receive buffers must be specified")
	}
	frameSize := cfg.Format.FrameSize()
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size %d for format %+v",
			frameSize, cfg.Format)
	}
	if err := cfg.Plugins.Init(cfg.Format); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}

	return &CallbackAdapter{
		format:    cfg.Format,
		frameSize: frameSize,
		send:      cfg.Send,
		recv:      cfg.Recv,
		plugins:   cfg.Plugins,
		log:       log,
		scratch:   make([]byte, frameSize),
	}, nil
}

// FrameSize is the size of the frames exchanged with the buffers.
func (a *CallbackAdapter) FrameSize() int { return a.frameSize }

// Process is the DataProc to register with the audio device.
func (a *CallbackAdapter) Process(out, in []byte, framecount uint32) {
	a.callbacks.Add(1)

	inSize := int(framecount) * a.format.TickSize()
	if inSize != a.frameSize || len(in) < inSize || len(out) < a.frameSize {
		a.sizeMismatches.Add(1)
		if addDebugTrace {
			a.log.Tracef("Callback size mismatch: framecount %d, "+
				"len(in) %d, len(out) %d, frame size %d", framecount,
				len(in), len(out), a.frameSize)
		}
	}

	// Capture side.
	n := copy(a.scratch, in)
	clear(a.scratch[n:])
	a.plugins.Process(Frame{Data: a.scratch, Format: a.format})
	if _, err := a.send.Write(a.scratch); err != nil {
		a.bufferErrors.Add(1)
	}

	// Playback side.
	if len(out) < a.frameSize {
		clear(out)
		return
	}
	if _, err := a.recv.Read(out); err != nil {
		a.bufferErrors.Add(1)
		clear(out)
		return
	}
	clear(out[a.frameSize:])
}

// Stats returns the running totals of the adapter.
func (a *CallbackAdapter) Stats() AdapterStats {
	return AdapterStats{
		Callbacks:      a.callbacks.Load(),
		SizeMismatches: a.sizeMismatches.Load(),
		BufferErrors:   a.bufferErrors.Load(),
	}
}
