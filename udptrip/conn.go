//go:build unix

package main

import (
	"net"
	"runtime"

	"github.com/decred/slog"
	"golang.org/x/sys/unix"
)

// minKernelBufferSize is the minimum recommended size for the kernel receive
// buffer of the socket.
const minKernelBufferSize = 256 * 1024

// checkKernelUDPBufferSize warns when the kernel buffers of the socket are
// small enough that packets could be dropped.
func checkKernelUDPBufferSize(socket *net.UDPConn, log slog.Logger) {
	size, err := getKernelBufferSize(socket)
	if err != nil {
		log.Warnf("Unable to query kernel for UDP buffer size of %s: %v",
			socket.LocalAddr(), err)
		return
	}

	log.Debugf("Kernel UDP receive buffer size for %s is %d bytes",
		socket.LocalAddr(), size)
	if size >= minKernelBufferSize {
		return
	}

	log.Warnf("Kernel UDP buffer size for address %s is small (%d bytes)",
		socket.LocalAddr(), size)
	switch runtime.GOOS {
	case "linux":
		log.Warnf("Use `sysctl -w net.core.{rmem_max,rmem_default}=size_in_bytes` " +
			"to set the UDP kernel buffer sizes on Linux")
	case "openbsd":
		log.Warnf("Use `sysctl net.inet.udp.recvspace=size_in_bytes` " +
			"to set the UDP kernel buffer sizes on OpenBSD")
	}
}

// getKernelBufferSize returns the size of the kernel receive buffer of the
// socket.
func getKernelBufferSize(socket *net.UDPConn) (int, error) {
	var size int
	sysConn, err := socket.SyscallConn()
	if err != nil {
		return 0, err
	}

	var getErr error
	err = sysConn.Control(func(fd uintptr) {
		size, getErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	})
	if err != nil {
		return 0, err
	}
	return size, getErr
}
