package audio

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	minGainDB = -60
	maxGainDB = 24
)

// GainPlugin scales every captured sample by a gain expressed in decibels.
// The gain may be changed while audio is flowing.
type GainPlugin struct {
	factor atomic.Uint64 // math.Float64bits of the linear factor
	db     atomic.Uint64 // math.Float64bits of the gain in dB
}

// NewGainPlugin creates a new gain plugin.
func NewGainPlugin(gainDB float64) (*GainPlugin, error) {
	g := &GainPlugin{}
	if err := g.SetGainDB(gainDB); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GainPlugin) Name() string { return "gain" }

func (g *GainPlugin) Init(f Format) error {
	if !f.BitRes.IsValid() {
		return fmt.Errorf("unsupported bit resolution %d", f.BitRes)
	}
	return nil
}

// SetGainDB changes the gain.
func (g *GainPlugin) SetGainDB(gainDB float64) error {
	if math.IsNaN(gainDB) || gainDB < minGainDB || gainDB > maxGainDB {
		return fmt.Errorf("gain %.2fdB outside range [%d, %d]",
			gainDB, minGainDB, maxGainDB)
	}
	g.db.Store(math.Float64bits(gainDB))
	g.factor.Store(math.Float64bits(gainFactorFromDB(gainDB)))
	return nil
}

// GainDB returns the current gain.
func (g *GainPlugin) GainDB() float64 {
	return math.Float64frombits(g.db.Load())
}

func (g *GainPlugin) Process(f Frame) {
	factor := math.Float64frombits(g.factor.Load())
	if factor == 1 {
		return
	}

	br := f.Format.BitRes
	bps := br.BytesPerSample()
	if bps == 0 {
		return
	}
	for off := 0; off+bps <= len(f.Data); off += bps {
		s := f.Data[off : off+bps]
		encodeSample(s, br, decodeSample(s, br)*factor)
	}
}
