package seqtracker

import (
	"sync"
)

// winSize is the number of past sequence numbers tracked. MUST match the size
// of Tracker.win.
const winSize = 64

// resyncAfter is the number of consecutive packets behind the window after
// which the tracker assumes the sender jumped and restarts tracking.
const resyncAfter = 64

// Verdict is the classification of a tracked sequence number.
type Verdict int

const (
	// Accept means the packet advances the stream and should be used.
	Accept Verdict = iota

	// Late means the packet is older than the newest accepted one but
	// was not seen before. Late packets are not played.
	Late

	// Duplicate means the packet was already seen.
	Duplicate

	// Stale means the packet is older than the tracked window.
	Stale
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Late:
		return "late"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Stats are the running totals of a Tracker.
//
// Lost counts the sequence numbers skipped when the window advanced. A
// skipped packet that arrives later is dropped as Late and is not subtracted
// from Lost, so Lost is the number of packets that were never played, not
// the number that were never received.
type Stats struct {
	Accepted  uint64
	Lost      uint64
	Late      uint64
	Duplicate uint64
	Stale     uint64
	Resyncs   uint64
}

// Tracker tracks uint16 (RTP) sequence numbers inside a 64-packet wide
// window. Comparisons use serial number arithmetic, so wrapping around the
// end of the sequence space is handled transparently.
//
// An empty sequence tracker is ready for use. The first tracked sequence
// number is always accepted.
type Tracker struct {
	mtx sync.Mutex

	started bool

	// seq is the newest sequence number accepted.
	seq uint16

	// win is the bitmap that tracks received packets within the
	// receiving window (i.e. packets [seq-63..seq]).
	win uint64

	// stale is the number of consecutive stale packets.
	stale int

	stats Stats
}

// Track classifies sequence number s and advances the state of the tracker.
// The returned gap is the number of sequence numbers skipped when s advances
// the stream by more than one.
func (st *Tracker) Track(s uint16) (v Verdict, gap int) {
	st.mtx.Lock()
	defer st.mtx.Unlock()

	if !st.started {
		st.restart(s)
		return Accept, 0
	}

	d := int(int16(s - st.seq))
	switch {
	case d > 0:
		// Moving seq window forward.
		st.seq = s
		if d >= winSize {
			st.win = 1
		} else {
			st.win = st.win<<uint(d) | 1
		}
		st.stale = 0
		gap = d - 1
		st.stats.Accepted++
		st.stats.Lost += uint64(gap)
		return Accept, gap

	case d > -winSize:
		// Seq in the past (or current) and inside window.
		st.stale = 0
		mask := uint64(1) << uint(-d)
		if st.win&mask != 0 {
			st.stats.Duplicate++
			return Duplicate, 0
		}
		st.win |= mask
		st.stats.Late++
		return Late, 0

	default:
		st.stale++
		if st.stale >= resyncAfter {
			st.restart(s)
			st.stats.Resyncs++
			return Accept, 0
		}
		st.stats.Stale++
		return Stale, 0
	}
}

// restart starts tracking from s. Must be called with the mutex held.
func (st *Tracker) restart(s uint16) {
	st.started = true
	st.seq = s
	st.win = 1
	st.stale = 0
	st.stats.Accepted++
}

// Reset forgets the tracked window. The next tracked sequence number is
// accepted. Running totals are kept.
func (st *Tracker) Reset() {
	st.mtx.Lock()
	st.started = false
	st.win = 0
	st.stale = 0
	st.mtx.Unlock()
}

// Stats returns the running totals.
func (st *Tracker) Stats() Stats {
	st.mtx.Lock()
	s := st.stats
	st.mtx.Unlock()
	return s
}
