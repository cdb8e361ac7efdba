//go:build !cgo || noaudio

// In cgo-less and noaudio builds the only available backend is the software
// clock.

package audio

import (
	"errors"

	"github.com/decred/slog"
)

func init() {
	newAudioContext = func(bool) (audioContext, error) {
		return newClockContext(), nil
	}
}

var errAudioDisabledCompilation = errors.New("audio was disabled during compilation")

func ListAudioDevices(log slog.Logger) (Devices, error) {
	return Devices{}, errAudioDisabledCompilation
}

func FindDevice(typ DeviceType, id DeviceID) *Device { return nil }
