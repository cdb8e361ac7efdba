//go:build !linux

package trip

import "net"

func initKernelStatsTracker(inner *net.UDPConn) (kernelStatsTracker, error) {
	return nullKernelStatsTracker{}, nil
}
