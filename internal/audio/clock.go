package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/companyzero/udptrip/rpc"
)

// clockContext is an audio context without audio hardware. Its devices call
// the data callback on a timer at the period rate, with silence as input.
// Played audio is discarded.
type clockContext struct{}

func newClockContext() audioContext {
	return clockContext{}
}

func (clockContext) name() string { return "clock" }
func (clockContext) free() error  { return nil }

func (clockContext) initDuplex(cfg deviceConfig, cb DataProc) (duplexDevice, error) {
	period := cfg.format.Period()
	if period <= 0 {
		return nil, errors.New("invalid period for clock device")
	}
	frameSize := cfg.format.FrameSize()

	// Devices use unsigned 8 bit samples, where silence is 0x80.
	var silence byte
	if cfg.format.BitRes == rpc.BitRes8 {
		silence = 0x80
	}
	return &clockDevice{
		silence:    silence,
		cb:         cb,
		period:     period,
		frames:     uint32(cfg.format.PeriodFrames),
		sampleRate: cfg.format.SampleRate,
		in:         make([]byte, frameSize),
		out:        make([]byte, frameSize),
	}, nil
}

type clockDevice struct {
	cb         DataProc
	period     time.Duration
	frames     uint32
	sampleRate uint32
	silence    byte
	in, out    []byte

	mtx  sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (cd *clockDevice) SampleRate() uint32 { return cd.sampleRate }

func (cd *clockDevice) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(cd.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		for i := range cd.in {
			cd.in[i] = cd.silence
		}
		cd.cb(cd.out, cd.in, cd.frames)
	}
}

func (cd *clockDevice) Start() error {
	cd.mtx.Lock()
	defer cd.mtx.Unlock()
	if cd.stop != nil {
		return errors.New("clock device already started")
	}
	cd.stop = make(chan struct{})
	cd.done = make(chan struct{})
	go cd.run(cd.stop, cd.done)
	return nil
}

func (cd *clockDevice) Stop() error {
	cd.mtx.Lock()
	defer cd.mtx.Unlock()
	if cd.stop == nil {
		return nil
	}
	close(cd.stop)
	<-cd.done
	cd.stop, cd.done = nil, nil
	return nil
}

func (cd *clockDevice) Uninit() {}
