//go:build !linux

package trip

import (
	"fmt"
	"runtime"
)

func elevateThread() (string, error) {
	return "", fmt.Errorf("thread priority not supported on %s", runtime.GOOS)
}
