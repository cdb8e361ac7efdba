package audio

import (
	"time"

	"github.com/companyzero/udptrip/rpc"
)

type DeviceType string

const (
	DeviceTypeCapture  DeviceType = "capture"
	DeviceTypePlayback DeviceType = "playback"
)

// DeviceID is the backend specific identifier of an audio device. The empty
// id selects the default device.
type DeviceID string

type Device struct {
	ID        DeviceID `json:"id"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"is_default"`
}

type Devices struct {
	Playback []Device `json:"playback"`
	Capture  []Device `json:"capture"`
}

// DataProc is called by audio devices once per period with the captured
// samples in in and a buffer to fill with samples to play in out. Both
// buffers hold framecount interleaved frames.
type DataProc func(out, in []byte, framecount uint32)

// Format describes the layout of the audio exchanged with a device.
type Format struct {
	SampleRate   uint32
	Channels     int
	BitRes       rpc.BitResolution
	PeriodFrames int
}

// TickSize is the number of bytes of one audio frame (one sample for every
// channel).
func (f Format) TickSize() int {
	return f.Channels * f.BitRes.BytesPerSample()
}

// FrameSize is the number of bytes delivered per device period.
func (f Format) FrameSize() int {
	return f.PeriodFrames * f.TickSize()
}

// Period is the duration of one device period.
func (f Format) Period() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.PeriodFrames) * time.Second / time.Duration(f.SampleRate)
}

// deviceConfig is the configuration used to init a duplex device.
type deviceConfig struct {
	captureID  DeviceID
	playbackID DeviceID
	format     Format
}

// duplexDevice is a device that captures and plays audio at the same time.
type duplexDevice interface {
	Start() error
	Stop() error
	Uninit()

	// SampleRate is the sample rate the device was initialized with.
	SampleRate() uint32
}

// audioContext is an audio backend.
type audioContext interface {
	name() string
	initDuplex(cfg deviceConfig, cb DataProc) (duplexDevice, error)
	free() error
}

// newAudioContext creates the default audio context for the build. realtime
// requests the backend to run its processing thread at realtime priority.
var newAudioContext func(realtime bool) (audioContext, error)
