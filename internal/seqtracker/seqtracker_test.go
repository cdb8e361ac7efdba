package seqtracker

import (
	randv2 "math/rand/v2"
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
)

// TestSeqTracking tests the behavior of the Tracker structure.
func TestSeqTracking(t *testing.T) {
	state := func(seq uint16, win uint64) *Tracker {
		return &Tracker{started: true, seq: seq, win: win}
	}

	tests := []struct {
		name        string
		state       *Tracker
		seq         uint16
		wantVerdict Verdict
		wantGap     int
		wantState   *Tracker
	}{{
		name:        "first packet",
		state:       &Tracker{},
		seq:         1234,
		wantVerdict: Accept,
		wantState:   state(1234, 0b1),
	}, {
		name:        "one to two",
		state:       state(1, 0b1),
		seq:         2,
		wantVerdict: Accept,
		wantState:   state(2, 0b11),
	}, {
		name:        "two to four", // 3 is missed
		state:       state(2, 0b11),
		seq:         4,
		wantVerdict: Accept,
		wantGap:     1,
		wantState:   state(4, 0b1101),
	}, {
		name:        "three arrives late",
		state:       state(4, 0b1101),
		seq:         3,
		wantVerdict: Late,
		wantState:   state(4, 0b1111),
	}, {
		name:        "two again",
		state:       state(4, 0b1101),
		seq:         2,
		wantVerdict: Duplicate,
		wantState:   state(4, 0b1101),
	}, {
		name:        "current again",
		state:       state(4, 0b1101),
		seq:         4,
		wantVerdict: Duplicate,
		wantState:   state(4, 0b1101),
	}, {
		name:        "jump past window",
		state:       state(4, 0b1101),
		seq:         200,
		wantVerdict: Accept,
		wantGap:     195,
		wantState:   state(200, 0b1),
	}, {
		name:        "wrap around",
		state:       state(65534, 0b1),
		seq:         1,
		wantVerdict: Accept,
		wantGap:     2,
		wantState:   state(1, 0b1001),
	}, {
		name:        "late across wrap",
		state:       state(1, 0b1001),
		seq:         65535,
		wantVerdict: Late,
		wantState:   state(1, 0b1101),
	}, {
		name:        "behind window",
		state:       state(1000, 0b1),
		seq:         900,
		wantVerdict: Stale,
		wantState:   state(1000, 0b1),
	}, {
		name:        "half sequence space away",
		state:       state(0, 0b1),
		seq:         40000,
		wantVerdict: Stale,
		wantState:   state(0, 0b1),
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotVerdict, gotGap := tc.state.Track(tc.seq)
			assert.DeepEqual(t, gotVerdict, tc.wantVerdict)
			assert.DeepEqual(t, gotGap, tc.wantGap)
			assert.DeepEqual(t, tc.state.seq, tc.wantState.seq)
			if tc.state.win != tc.wantState.win {
				t.Fatalf("Unexpected state: got %064b, want %064b",
					tc.state.win, tc.wantState.win)
			}
		})
	}
}

// TestSeqTrackingResync asserts the tracker restarts after a long run of
// packets behind the window.
func TestSeqTrackingResync(t *testing.T) {
	t.Parallel()

	st := &Tracker{}
	v, _ := st.Track(30000)
	assert.DeepEqual(t, v, Accept)

	for i := 0; i < resyncAfter-1; i++ {
		v, _ := st.Track(uint16(100 + i))
		assert.DeepEqual(t, v, Stale)
	}
	v, _ = st.Track(uint16(100 + resyncAfter - 1))
	assert.DeepEqual(t, v, Accept)

	v, gap := st.Track(uint16(100 + resyncAfter))
	assert.DeepEqual(t, v, Accept)
	assert.DeepEqual(t, gap, 0)

	stats := st.Stats()
	assert.DeepEqual(t, stats.Resyncs, uint64(1))
	assert.DeepEqual(t, stats.Stale, uint64(resyncAfter-1))
	assert.DeepEqual(t, stats.Accepted, uint64(3))
}

// TestSeqTrackingReset asserts Reset accepts any following sequence number.
func TestSeqTrackingReset(t *testing.T) {
	t.Parallel()

	st := &Tracker{}
	st.Track(10)
	st.Track(11)
	st.Reset()
	v, gap := st.Track(5)
	assert.DeepEqual(t, v, Accept)
	assert.DeepEqual(t, gap, 0)
	assert.DeepEqual(t, st.Stats().Accepted, uint64(3))
}

// TestSeqTrackingLossCount asserts the lost count matches the number of
// sequence numbers never delivered when packets are randomly dropped.
func TestSeqTrackingLossCount(t *testing.T) {
	t.Parallel()

	rng := randv2.New(randv2.NewPCG(1, 2))
	st := &Tracker{}
	var seq uint16 = 65000 // Crosses the wrap point.
	var dropped uint64
	st.Track(seq)
	for i := 0; i < 5000; i++ {
		seq++
		if rng.IntN(10) == 0 {
			dropped++
			continue
		}
		v, _ := st.Track(seq)
		assert.DeepEqual(t, v, Accept)
	}

	// Trailing drops are only counted once a later packet arrives.
	seq++
	st.Track(seq)
	assert.DeepEqual(t, st.Stats().Lost, dropped)
}

// TestSeqTrackingLateStaysLost asserts a skipped packet that arrives late is
// still counted as lost, since it is never played.
func TestSeqTrackingLateStaysLost(t *testing.T) {
	t.Parallel()

	st := &Tracker{}
	st.Track(100)
	v, gap := st.Track(103)
	assert.DeepEqual(t, v, Accept)
	assert.DeepEqual(t, gap, 2)

	v, _ = st.Track(101)
	assert.DeepEqual(t, v, Late)
	stats := st.Stats()
	assert.DeepEqual(t, stats.Lost, uint64(2))
	assert.DeepEqual(t, stats.Late, uint64(1))
}

// BenchmarkSeqTracking benchmarks the Tracker structure.
func BenchmarkSeqTracking(b *testing.B) {
	state := &Tracker{}
	rng := randv2.New(randv2.NewPCG(randv2.Uint64(), randv2.Uint64()))

	var seq uint16
	for i := 0; i < b.N; i++ {
		d := uint16(rng.NormFloat64() * 16)
		state.Track(seq + d)
		seq++
	}
}
