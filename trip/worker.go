package trip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/companyzero/udptrip/internal/logutil"
	"github.com/decred/slog"
)

var errWorkerNotIdle = errors.New("worker already started")

// workerState is the lifecycle state of a worker.
type workerState int32

const (
	workerIdle workerState = iota
	workerRunning
	workerStopping
	workerStopped
)

func (ws workerState) String() string {
	switch ws {
	case workerIdle:
		return "idle"
	case workerRunning:
		return "running"
	case workerStopping:
		return "stopping"
	case workerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(ws))
	}
}

// worker holds the lifecycle shared by the transmit and receive workers:
// Idle -> Running -> Stopping -> Stopped. A worker may run only once.
type worker struct {
	name     string
	log      slog.Logger
	priority Priority

	state atomic.Int32
	done  chan struct{}

	mtx    sync.Mutex
	cancel context.CancelFunc
	ran    bool
}

func newWorker(name string, priority Priority, log slog.Logger) worker {
	return worker{
		name:     name,
		log:      logutil.PrefixLogger(log, name),
		priority: priority,
		done:     make(chan struct{}),
	}
}

// run executes loop in the calling goroutine until it returns, either because
// ctx is done, Stop() was called or loop failed. A worker stopped before it
// ran returns nil without running loop.
func (w *worker) run(ctx context.Context, loop func(context.Context) error) error {
	w.mtx.Lock()
	if w.ran {
		w.mtx.Unlock()
		return fmt.Errorf("%s: %w", w.name, errWorkerNotIdle)
	}
	w.ran = true
	if !w.state.CompareAndSwap(int32(workerIdle), int32(workerRunning)) {
		w.mtx.Unlock()
		w.log.Debugf("Worker stopped before running")
		return nil
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.mtx.Unlock()

	defer func() {
		w.cancel()
		w.state.Store(int32(workerStopped))
		close(w.done)
	}()

	applyPriority(w.priority, w.log)
	w.log.Debugf("Starting worker")
	err := loop(ctx)
	if err != nil {
		w.log.Errorf("Worker failed: %v", err)
	} else {
		w.log.Debugf("Worker stopped")
	}
	return err
}

// Stop requests the worker to stop. It does not wait for the worker to
// finish; use Done() for that. Stopping a worker that was never started
// moves it directly to the stopped state.
func (w *worker) Stop() {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	switch {
	case w.state.CompareAndSwap(int32(workerIdle), int32(workerStopped)):
		close(w.done)
	case w.state.CompareAndSwap(int32(workerRunning), int32(workerStopping)):
		w.cancel()
	}
}

// State returns the current state of the worker.
func (w *worker) State() workerState {
	return workerState(w.state.Load())
}

// Done is closed once the worker is stopped.
func (w *worker) Done() <-chan struct{} {
	return w.done
}

// live returns true if the worker goroutine has not finished.
func (w *worker) live() bool {
	st := w.State()
	return st == workerRunning || st == workerStopping
}
