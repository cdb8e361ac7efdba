package audio

import (
	"bytes"
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
	"github.com/companyzero/udptrip/internal/ringbuf"
	"github.com/companyzero/udptrip/rpc"
)

// invertPlugin flips the sign of every sample.
type invertPlugin struct {
	inited Format
}

func (p *invertPlugin) Name() string        { return "invert" }
func (p *invertPlugin) Init(f Format) error { p.inited = f; return nil }
func (p *invertPlugin) Process(f Frame) {
	for i := 0; i < f.Ticks(); i++ {
		for ch := 0; ch < f.Format.Channels; ch++ {
			f.SetSample(i, ch, -f.Sample(i, ch))
		}
	}
}

func newTestAdapter(t testing.TB, format Format, plugins *PluginChain) (*CallbackAdapter, *ringbuf.Buffer, *ringbuf.Buffer) {
	t.Helper()
	send, err := ringbuf.New(4, format.FrameSize())
	assert.NilErr(t, err)
	recv, err := ringbuf.New(8, format.FrameSize())
	assert.NilErr(t, err)
	a, err := NewCallbackAdapter(AdapterConfig{
		Format:  format,
		Send:    send,
		Recv:    recv,
		Plugins: plugins,
	})
	assert.NilErr(t, err)
	return a, send, recv
}

// TestAdapterProcess asserts one frame is produced and one consumed per
// callback.
func TestAdapterProcess(t *testing.T) {
	t.Parallel()

	format := Format{SampleRate: 48000, Channels: 2, BitRes: rpc.BitRes16, PeriodFrames: 1}
	a, send, recv := newTestAdapter(t, format, nil)
	assert.DeepEqual(t, a.FrameSize(), 4)

	// Nothing to play yet: silence and an underrun.
	out := bytes.Repeat([]byte{0xee}, 4)
	a.Process(out, []byte{1, 2, 3, 4}, 1)
	assert.DeepEqual(t, out, make([]byte, 4))
	assert.DeepEqual(t, recv.Stats().Underruns, uint64(1))

	got := make([]byte, 4)
	assert.BoolIs(t, send.TryRead(got), true)
	assert.DeepEqual(t, got, []byte{1, 2, 3, 4})

	// A received frame is played on the next callback.
	_, err := recv.Write([]byte{9, 8, 7, 6})
	assert.NilErr(t, err)
	a.Process(out, []byte{5, 6, 7, 8}, 1)
	assert.DeepEqual(t, out, []byte{9, 8, 7, 6})
	assert.BoolIs(t, send.TryRead(got), true)
	assert.DeepEqual(t, got, []byte{5, 6, 7, 8})

	assert.DeepEqual(t, send.Stats().Writes, uint64(2))
	assert.DeepEqual(t, recv.Stats().Reads, uint64(1))
	assert.DeepEqual(t, a.Stats(), AdapterStats{Callbacks: 2})
}

// TestAdapterSizeMismatch asserts short inputs are zero padded and longer
// outputs have their tail cleared.
func TestAdapterSizeMismatch(t *testing.T) {
	t.Parallel()

	format := Format{SampleRate: 48000, Channels: 1, BitRes: rpc.BitRes8, PeriodFrames: 4}
	a, send, recv := newTestAdapter(t, format, nil)

	_, err := recv.Write([]byte{1, 2, 3, 4})
	assert.NilErr(t, err)
	out := bytes.Repeat([]byte{0xee}, 6)
	a.Process(out, []byte{7, 7}, 2)
	assert.DeepEqual(t, out, []byte{1, 2, 3, 4, 0, 0})

	got := make([]byte, 4)
	assert.BoolIs(t, send.TryRead(got), true)
	assert.DeepEqual(t, got, []byte{7, 7, 0, 0})
	assert.DeepEqual(t, a.Stats().SizeMismatches, uint64(1))
}

// TestAdapterPlugins asserts captured frames go through the plugin chain
// before being sent, while played frames are untouched.
func TestAdapterPlugins(t *testing.T) {
	t.Parallel()

	format := Format{SampleRate: 44100, Channels: 2, BitRes: rpc.BitRes16, PeriodFrames: 2}
	inv := &invertPlugin{}
	a, send, recv := newTestAdapter(t, format, NewPluginChain(inv))
	assert.DeepEqual(t, inv.inited, format)

	in := make([]byte, format.FrameSize())
	f := Frame{Data: in, Format: format}
	f.SetSample(0, 0, 0.5)
	f.SetSample(0, 1, -0.25)
	f.SetSample(1, 0, 0.125)
	f.SetSample(1, 1, 0)

	played := bytes.Repeat([]byte{0x10}, format.FrameSize())
	_, err := recv.Write(played)
	assert.NilErr(t, err)

	out := make([]byte, format.FrameSize())
	a.Process(out, in, 2)
	assert.DeepEqual(t, out, played)

	sent := make([]byte, format.FrameSize())
	assert.BoolIs(t, send.TryRead(sent), true)
	sf := Frame{Data: sent, Format: format}
	assert.DeepEqual(t, sf.Sample(0, 0), -0.5)
	assert.DeepEqual(t, sf.Sample(0, 1), 0.25)
	assert.DeepEqual(t, sf.Sample(1, 0), -0.125)
	assert.DeepEqual(t, sf.Sample(1, 1), 0.0)
}

// TestAdapterDoesNotAllocate asserts the callback path does not allocate.
func TestAdapterDoesNotAllocate(t *testing.T) {
	format := Format{SampleRate: 48000, Channels: 2, BitRes: rpc.BitRes24, PeriodFrames: 64}
	gain, err := NewGainPlugin(-6)
	assert.NilErr(t, err)
	a, _, recv := newTestAdapter(t, format, NewPluginChain(gain))

	in := bytes.Repeat([]byte{0x42}, format.FrameSize())
	out := make([]byte, format.FrameSize())
	frame := make([]byte, format.FrameSize())
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = recv.Write(frame)
		a.Process(out, in, uint32(format.PeriodFrames))
	})
	if allocs != 0 {
		t.Fatalf("unexpected allocations per callback: %v", allocs)
	}
}

func TestNewCallbackAdapterErrors(t *testing.T) {
	t.Parallel()

	buf, err := ringbuf.New(1, 4)
	assert.NilErr(t, err)
	_, err = NewCallbackAdapter(AdapterConfig{
		Format: Format{SampleRate: 48000, Channels: 2, BitRes: rpc.BitRes16, PeriodFrames: 1},
		Send:   buf,
	})
	assert.NonNilErr(t, err)
	_, err = NewCallbackAdapter(AdapterConfig{
		Format: Format{SampleRate: 48000, Channels: 2, BitRes: 33, PeriodFrames: 1},
		Send:   buf,
		Recv:   buf,
	})
	assert.NonNilErr(t, err)
}
