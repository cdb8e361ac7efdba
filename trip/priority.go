package trip

import (
	"runtime"

	"github.com/decred/slog"
)

const (
	// fifoPriority is the SCHED_FIFO priority requested for elevated
	// worker threads.
	fifoPriority = 20

	// elevatedNice is the nice value used when realtime scheduling is not
	// available.
	elevatedNice = -10
)

// applyPriority is called at the start of a worker goroutine. For elevated
// priority, the goroutine is locked to its OS thread and the thread
// scheduling is changed. The thread is never unlocked, so that it is
// terminated when the goroutine ends instead of returning to the scheduler
// with a modified priority.
//
// Failing to elevate the priority is never fatal.
func applyPriority(p Priority, log slog.Logger) {
	if p != PriorityElevated {
		return
	}

	runtime.LockOSThread()
	how, err := elevateThread()
	if err != nil {
		log.Warnf("Unable to elevate thread priority: %v "+
			"(continuing at normal priority)", err)
		return
	}
	log.Debugf("Elevated thread priority (%s)", how)
}
