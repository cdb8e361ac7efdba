//go:build cgo && !noaudio

package audio

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"strconv"

	"github.com/companyzero/udptrip/rpc"
	"github.com/decred/slog"

	"github.com/gen2brain/malgo"
)

// toMalgoDeviceId converts a device id to a malgo device id.
func (id DeviceID) toMalgoDeviceId() malgo.DeviceID {
	var res malgo.DeviceID
	if runtime.GOOS == "android" {
		i, err := strconv.ParseInt(string(id), 10, 32)
		if err == nil {
			binary.LittleEndian.PutUint32(res[:], uint32(i))
		}

	} else {
		copy(res[:], id)
	}
	return res
}

func init() {
	newAudioContext = newMalgoContext
}

// malgoFormat returns the malgo sample format for the bit resolution.
func malgoFormat(br rpc.BitResolution) (malgo.FormatType, error) {
	switch br {
	case rpc.BitRes8:
		return malgo.FormatU8, nil
	case rpc.BitRes16:
		return malgo.FormatS16, nil
	case rpc.BitRes24:
		return malgo.FormatS24, nil
	case rpc.BitRes32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %d", rpc.ErrInvalidBitResolution, br)
	}
}

func listMalgoDevices(typ malgo.DeviceType, malgoCtx *malgo.AllocatedContext, log slog.Logger) ([]Device, error) {
	devices, err := malgoCtx.Devices(typ)
	if err != nil {
		return nil, err
	}

	res := make([]Device, 0, len(devices))
	setIds := make(map[DeviceID]struct{}, len(devices))
	for _, dev := range devices {
		full, err := malgoCtx.DeviceInfo(typ, dev.ID, malgo.Shared)
		if err != nil {
			log.Warnf("Unable to get audio device info: %v", err)
			continue
		}

		// Avoid duplicate device IDs.
		id := DeviceID(string(append([]byte(nil), full.ID[:]...)))
		if _, ok := setIds[id]; ok {
			continue
		}
		setIds[id] = struct{}{}

		res = append(res, Device{
			ID:        id,
			Name:      full.Name(),
			IsDefault: full.IsDefault == 1,
		})
	}

	return res, nil
}

// ListAudioDevices lists available audio devices.
func ListAudioDevices(log slog.Logger) (Devices, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return Devices{}, err
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	playbackDevs, err := listMalgoDevices(malgo.Playback, malgoCtx, log)
	if err != nil {
		return Devices{}, err
	}
	captureDevs, err := listMalgoDevices(malgo.Capture, malgoCtx, log)
	if err != nil {
		return Devices{}, err
	}

	return Devices{
		Playback: playbackDevs,
		Capture:  captureDevs,
	}, nil
}

// FindDevice finds the device with the given ID or returns nil.
func FindDevice(typ DeviceType, id DeviceID) *Device {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	malgoDt := malgo.Capture
	if typ == DeviceTypePlayback {
		malgoDt = malgo.Playback
	}
	devices, err := listMalgoDevices(malgoDt, malgoCtx, slog.Disabled)
	if err != nil {
		return nil
	}

	for i := range devices {
		if devices[i].ID == id {
			out := new(Device)
			*out = devices[i]
			return out
		}
	}

	return nil
}

// malgoContext is an implementation of audioContext which offloads the
// work to malgo library.
type malgoContext struct {
	malgoCtx *malgo.AllocatedContext
}

// emptyDeviceID is an empty malgo device id.
var emptyDeviceID malgo.DeviceID

// newMalgoContext creates a new audioContext using malgo.
func newMalgoContext(realtime bool) (audioContext, error) {
	cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityDefault}
	if realtime {
		cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	}
	malgoCtx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, err
	}

	return &malgoContext{malgoCtx: malgoCtx}, nil
}

func (mpc *malgoContext) name() string {
	return "malgo"
}

func (mpc *malgoContext) free() error {
	if err := mpc.malgoCtx.Uninit(); err != nil {
		return err
	}
	mpc.malgoCtx.Free()
	return nil
}

// malgoDuplexDevice wraps a malgo device to report the sample rate it was
// configured with.
type malgoDuplexDevice struct {
	*malgo.Device
	sampleRate uint32
}

func (md malgoDuplexDevice) SampleRate() uint32 { return md.sampleRate }

// initDuplex is part of the audioContext interface.
func (mpc *malgoContext) initDuplex(cfg deviceConfig, cb DataProc) (duplexDevice, error) {
	format, err := malgoFormat(cfg.format.BitRes)
	if err != nil {
		return nil, err
	}

	// Sanity check.
	sampleSizeInBytes := malgo.SampleSizeInBytes(format)
	if sampleSizeInBytes != cfg.format.BitRes.BytesPerSample() {
		return nil, fmt.Errorf("malgo format has wrong sample size "+
			"(got %d, want %d)", sampleSizeInBytes,
			cfg.format.BitRes.BytesPerSample())
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.SampleRate = cfg.format.SampleRate
	deviceConfig.PeriodSizeInFrames = uint32(cfg.format.PeriodFrames)
	deviceConfig.PerformanceProfile = malgo.LowLatency
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = uint32(cfg.format.Channels)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(cfg.format.Channels)
	deviceConfig.Alsa.NoMMap = 1

	captureID := cfg.captureID.toMalgoDeviceId()
	if captureID != emptyDeviceID {
		deviceConfig.Capture.DeviceID = captureID.Pointer()
	}
	playbackID := cfg.playbackID.toMalgoDeviceId()
	if playbackID != emptyDeviceID {
		deviceConfig.Playback.DeviceID = playbackID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: malgo.DataProc(cb),
	}

	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	return malgoDuplexDevice{Device: device, sampleRate: cfg.format.SampleRate}, nil
}
