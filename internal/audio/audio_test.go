package audio

import (
	"sync"
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
	"github.com/companyzero/udptrip/internal/testutils"
	"github.com/companyzero/udptrip/rpc"
)

// testAudioContext is used to test bindings without audio hardware. The
// callback is only invoked by calling the test functions.
type testAudioContext struct {
	t testing.TB

	mtx      sync.Mutex
	cfg      deviceConfig
	started  chan struct{}
	stopped  chan struct{}
	uninited chan struct{}
	freed    chan struct{}
	cb       DataProc
}

func newTestAudioContext(t testing.TB) *testAudioContext {
	return &testAudioContext{
		t:        t,
		started:  make(chan struct{}, 5),
		stopped:  make(chan struct{}, 5),
		uninited: make(chan struct{}, 5),
		freed:    make(chan struct{}, 5),
	}
}

func (tac *testAudioContext) name() string {
	return "testaudio"
}

func (tac *testAudioContext) initDuplex(cfg deviceConfig, cb DataProc) (duplexDevice, error) {
	tac.mtx.Lock()
	tac.cfg = cfg
	tac.cb = cb
	tac.mtx.Unlock()
	return tac, nil
}

func (tac *testAudioContext) free() error {
	tac.freed <- struct{}{}
	return nil
}

// These are part of the duplex device interface.

func (tac *testAudioContext) Start() error {
	tac.started <- struct{}{}
	return nil
}
func (tac *testAudioContext) Stop() error {
	tac.stopped <- struct{}{}
	return nil
}
func (tac *testAudioContext) Uninit() {
	tac.uninited <- struct{}{}
}
func (tac *testAudioContext) SampleRate() uint32 {
	tac.mtx.Lock()
	defer tac.mtx.Unlock()
	return tac.cfg.format.SampleRate
}

// These are test functions.

// callback calls the registered device callback with the given input and
// returns the output.
func (tac *testAudioContext) callback(in []byte) []byte {
	tac.t.Helper()
	tac.mtx.Lock()
	cb, format := tac.cb, tac.cfg.format
	tac.mtx.Unlock()
	if cb == nil {
		tac.t.Fatalf("callback not initialized")
	}

	out := make([]byte, format.FrameSize())
	cb(out, in, uint32(format.PeriodFrames))
	return out
}

// TestBindingLifecycle tests the start/stop/close sequence of a binding.
func TestBindingLifecycle(t *testing.T) {
	t.Parallel()

	tac := newTestAudioContext(t)
	log := testutils.TestLoggerSys(t, "AUDI")
	b, err := newBinding(tac, BindingConfig{
		Channels: 2,
		BitRes:   rpc.BitRes16,
	}, log)
	assert.NilErr(t, err)
	assert.DeepEqual(t, b.SampleRate(), uint32(DefaultSampleRate))
	assert.DeepEqual(t, b.PeriodFrames(), uint32(DefaultPeriodFrames))
	assert.DeepEqual(t, b.Channels(), 2)

	// Before start, the device plays silence.
	in := make([]byte, b.Format().FrameSize())
	for i := range in {
		in[i] = 0x11
	}
	assert.DeepEqual(t, tac.callback(in), make([]byte, len(in)))

	var calls int
	cb := func(out, in []byte, framecount uint32) {
		calls++
		copy(out, in)
	}
	assert.NilErr(t, b.Start(cb))
	assert.ChanWritten(t, tac.started)
	assert.ErrorIs(t, b.Start(cb), errAlreadyStarted)

	assert.DeepEqual(t, tac.callback(in), in)
	assert.DeepEqual(t, calls, 1)

	assert.NilErr(t, b.Stop())
	assert.ChanWritten(t, tac.stopped)
	assert.ErrorIs(t, b.Stop(), errNotStarted)

	// Callback is not invoked after stop.
	assert.DeepEqual(t, tac.callback(in), make([]byte, len(in)))
	assert.DeepEqual(t, calls, 1)

	assert.NilErr(t, b.Close())
	assert.ChanWritten(t, tac.uninited)
	assert.ChanWritten(t, tac.freed)
	assert.NilErr(t, b.Close())
	assert.ErrorIs(t, b.Start(cb), errClosed)
}

// TestBinding8BitSigned asserts that 8 bit audio is exchanged with the device
// as unsigned samples and with the callback as signed samples.
func TestBinding8BitSigned(t *testing.T) {
	t.Parallel()

	tac := newTestAudioContext(t)
	b, err := newBinding(tac, BindingConfig{
		Channels:     1,
		BitRes:       rpc.BitRes8,
		PeriodFrames: 4,
	}, nil)
	assert.NilErr(t, err)

	var gotIn []byte
	err = b.Start(func(out, in []byte, framecount uint32) {
		gotIn = append([]byte(nil), in...)
		clear(out) // Signed silence.
	})
	assert.NilErr(t, err)

	out := tac.callback([]byte{0x80, 0x81, 0x7f, 0x00})
	assert.DeepEqual(t, gotIn, []byte{0x00, 0x01, 0xff, 0x80})
	assert.DeepEqual(t, out, []byte{0x80, 0x80, 0x80, 0x80})
}

func TestBindingRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tac := newTestAudioContext(t)
	_, err := newBinding(tac, BindingConfig{Channels: 2, BitRes: 12}, nil)
	assert.ErrorIs(t, err, rpc.ErrInvalidBitResolution)
	_, err = newBinding(tac, BindingConfig{Channels: 0, BitRes: rpc.BitRes16}, nil)
	assert.NonNilErr(t, err)
}
