package logutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/companyzero/udptrip/internal/assert"
	"github.com/decred/slog"
)

func testLogger(buf *bytes.Buffer) slog.Logger {
	log := slog.NewBackend(buf).Logger("TEST")
	log.SetLevel(slog.LevelTrace)
	return log
}

func TestPrefixLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := PrefixLogger(testLogger(&buf), "rx")
	log.Infof("hello %d", 1)
	log.Warn("world")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.DeepEqual(t, len(lines), 2)
	assert.BoolIs(t, strings.HasSuffix(lines[0], "[rx] hello 1"), true)
	assert.BoolIs(t, strings.HasSuffix(lines[1], " [rx] world"), true)
	assert.BoolIs(t, strings.Contains(lines[1], "[rx]  world"), false)

	log.SetLevel(slog.LevelError)
	log.Infof("not logged")
	assert.DeepEqual(t, strings.Count(buf.String(), "\n"), 2)
}

func TestSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		verbose  bool
		interval uint64
		want     int
	}{
		{"default interval", false, 0, 3},
		{"interval 10", false, 10, 201},
		{"interval 1", false, 1, 2001},
		{"verbose", true, 0, 2001},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			s := Sampler{Log: testLogger(&buf), Verbose: tc.verbose, Interval: tc.interval}
			for i := uint64(1); i <= 2001; i++ {
				s.Warnf(i, "error %s", "foo")
			}
			assert.DeepEqual(t, strings.Count(buf.String(), "\n"), tc.want)
			assert.BoolIs(t, strings.Contains(buf.String(), "error foo (1 occurrences)"), true)
		})
	}
}
