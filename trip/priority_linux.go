//go:build linux

package trip

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// elevateThread requests realtime FIFO scheduling for the calling thread,
// falling back to a lower nice value.
func elevateThread() (string, error) {
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: fifoPriority,
	}
	fifoErr := unix.SchedSetAttr(0, &attr, 0)
	if fifoErr == nil {
		return fmt.Sprintf("SCHED_FIFO %d", fifoPriority), nil
	}

	niceErr := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), elevatedNice)
	if niceErr == nil {
		return fmt.Sprintf("nice %d", elevatedNice), nil
	}

	return "", fmt.Errorf("SCHED_FIFO: %v; nice: %v", fifoErr, niceErr)
}
