//go:build !unix

package main

import (
	"net"

	"github.com/decred/slog"
)

func checkKernelUDPBufferSize(socket *net.UDPConn, log slog.Logger) {}
