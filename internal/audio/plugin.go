package audio

import (
	"fmt"
	"sync/atomic"
)

// Frame is a view of one period of interleaved audio handed to plugins.
// Plugins transform Data in place. Data must not be retained after Process
// returns.
type Frame struct {
	Data   []byte
	Format Format
}

// Ticks is the number of audio frames (one sample per channel) in Data.
func (f Frame) Ticks() int {
	ts := f.Format.TickSize()
	if ts == 0 {
		return 0
	}
	return len(f.Data) / ts
}

// Sample returns the sample of channel ch at tick i, in the [-1, 1) range.
func (f Frame) Sample(i, ch int) float64 {
	bps := f.Format.BitRes.BytesPerSample()
	off := (i*f.Format.Channels + ch) * bps
	return decodeSample(f.Data[off:off+bps], f.Format.BitRes)
}

// SetSample sets the sample of channel ch at tick i. v is clipped to the
// [-1, 1) range.
func (f Frame) SetSample(i, ch int, v float64) {
	bps := f.Format.BitRes.BytesPerSample()
	off := (i*f.Format.Channels + ch) * bps
	encodeSample(f.Data[off:off+bps], f.Format.BitRes, v)
}

// Plugin is an in-line audio processing stage, run on every captured frame
// before it is sent.
//
// Process is called from the audio callback, therefore it must not block,
// allocate or perform I/O.
type Plugin interface {
	Name() string
	Init(f Format) error
	Process(f Frame)
}

// PluginChain is an ordered list of plugins. Plugins may only be appended
// before the chain is initialized.
type PluginChain struct {
	plugins []Plugin
	inited  atomic.Bool
}

// NewPluginChain creates a new chain with the given plugins.
func NewPluginChain(plugins ...Plugin) *PluginChain {
	return &PluginChain{plugins: plugins}
}

// Append adds a plugin to the end of the chain.
func (c *PluginChain) Append(p Plugin) error {
	if c.inited.Load() {
		return fmt.Errorf("cannot append plugin %q to initialized chain", p.Name())
	}
	c.plugins = append(c.plugins, p)
	return nil
}

// Len is the number of plugins in the chain.
func (c *PluginChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.plugins)
}

// Names returns the names of the plugins in order.
func (c *PluginChain) Names() []string {
	if c == nil {
		return nil
	}
	res := make([]string, len(c.plugins))
	for i, p := range c.plugins {
		res[i] = p.Name()
	}
	return res
}

// Init initializes every plugin with the stream format.
func (c *PluginChain) Init(f Format) error {
	if c == nil {
		return nil
	}
	if !c.inited.CompareAndSwap(false, true) {
		return fmt.Errorf("plugin chain already initialized")
	}
	for _, p := range c.plugins {
		if err := p.Init(f); err != nil {
			return fmt.Errorf("unable to init plugin %q: %w", p.Name(), err)
		}
	}
	return nil
}

// Process runs every plugin on the frame, in order.
func (c *PluginChain) Process(f Frame) {
	if c == nil {
		return
	}
	for _, p := range c.plugins {
		p.Process(f)
	}
}
