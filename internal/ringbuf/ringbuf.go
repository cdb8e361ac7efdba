// Package ringbuf implements the fixed capacity frame buffer used to move
// audio frames between the audio callback and the network workers.
//
// Each Buffer is meant to have exactly one producer and one consumer. Writes
// never wait for the consumer: when the buffer is full the oldest unread frame
// is overwritten. Reads never wait for the producer: when the buffer is empty
// the destination is filled with silence.
package ringbuf

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrInvalidDepth     = errors.New("ring buffer depth must be >= 1")
	ErrInvalidFrameSize = errors.New("ring buffer frame size must be >= 1")
	ErrWrongFrameSize   = errors.New("frame has wrong size for ring buffer")
)

// Stats is a snapshot of the counters of a Buffer.
type Stats struct {
	Writes    uint64
	Reads     uint64
	Overruns  uint64
	Underruns uint64
	Buffered  int
}

// Buffer is a circular buffer of depth slots, each one frameSize bytes long.
type Buffer struct {
	frameSize int
	depth     int

	// ready is written (without blocking) after every write, so that a
	// consumer may wait for data to be available.
	ready chan struct{}

	writes    atomic.Uint64
	reads     atomic.Uint64
	overruns  atomic.Uint64
	underruns atomic.Uint64

	mtx   sync.Mutex
	slots []byte
	r     int // Next slot to read.
	w     int // Next slot to write.
	n     int // Number of filled, unread slots.
}

// New creates a new ring buffer with depth slots of frameSize bytes.
func New(depth, frameSize int) (*Buffer, error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidDepth, depth)
	}
	if frameSize < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidFrameSize, frameSize)
	}

	return &Buffer{
		frameSize: frameSize,
		depth:     depth,
		ready:     make(chan struct{}, 1),
		slots:     make([]byte, depth*frameSize),
	}, nil
}

// FrameSize is the size in bytes of each frame.
func (b *Buffer) FrameSize() int { return b.frameSize }

// Depth is the number of frame slots.
func (b *Buffer) Depth() int { return b.depth }

// Capacity is the total size of the buffer in bytes.
func (b *Buffer) Capacity() int { return len(b.slots) }

// Ready returns a channel that is written to after frames are written to the
// buffer. Only one notification is kept pending, therefore the consumer should
// drain the buffer after receiving from it.
func (b *Buffer) Ready() <-chan struct{} { return b.ready }

// Write stores a copy of frame in the next slot. If the buffer was full, the
// oldest unread frame is overwritten and overrun is returned as true.
func (b *Buffer) Write(frame []byte) (overrun bool, err error) {
	if len(frame) != b.frameSize {
		return false, fmt.Errorf("%w (got %d, want %d)", ErrWrongFrameSize,
			len(frame), b.frameSize)
	}

	b.mtx.Lock()
	i := b.w * b.frameSize
	copy(b.slots[i:i+b.frameSize], frame)
	b.w = (b.w + 1) % b.depth
	if b.n == b.depth {
		// Full. The slot just written was the oldest unread one.
		b.r = b.w
		overrun = true
	} else {
		b.n++
	}
	b.mtx.Unlock()

	b.writes.Add(1)
	if overrun {
		b.overruns.Add(1)
	}

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return overrun, nil
}

// read copies the oldest unread frame into dst. Returns false if there are no
// unread frames. dst must be at least frameSize long.
func (b *Buffer) read(dst []byte) bool {
	b.mtx.Lock()
	if b.n == 0 {
		b.mtx.Unlock()
		return false
	}
	i := b.r * b.frameSize
	copy(dst[:b.frameSize], b.slots[i:i+b.frameSize])
	b.r = (b.r + 1) % b.depth
	b.n--
	b.mtx.Unlock()

	b.reads.Add(1)
	return true
}

// Read copies the oldest unread frame into dst. If the buffer is empty, the
// first FrameSize() bytes of dst are zeroed and underrun is returned as true.
func (b *Buffer) Read(dst []byte) (underrun bool, err error) {
	if len(dst) < b.frameSize {
		return false, fmt.Errorf("%w (got %d, want %d)", ErrWrongFrameSize,
			len(dst), b.frameSize)
	}

	if b.read(dst) {
		return false, nil
	}

	clear(dst[:b.frameSize])
	b.underruns.Add(1)
	return true, nil
}

// TryRead copies the oldest unread frame into dst, returning false if the
// buffer is empty. An empty buffer does not count as an underrun. dst must be
// at least FrameSize() bytes long, otherwise false is returned.
func (b *Buffer) TryRead(dst []byte) bool {
	if len(dst) < b.frameSize {
		return false
	}
	return b.read(dst)
}

// Buffered returns the number of unread frames.
func (b *Buffer) Buffered() int {
	b.mtx.Lock()
	n := b.n
	b.mtx.Unlock()
	return n
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Writes:    b.writes.Load(),
		Reads:     b.reads.Load(),
		Overruns:  b.overruns.Load(),
		Underruns: b.underruns.Load(),
		Buffered:  b.Buffered(),
	}
}
