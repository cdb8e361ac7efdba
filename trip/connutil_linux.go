//go:build linux

package trip

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type linuxKernelStatsTracker struct {
	inode int
	isV6  bool
}

func initKernelStatsTracker(inner *net.UDPConn) (kernelStatsTracker, error) {
	// The inode may take a few milliseconds to show up in the list.
	var inode int
	var err error
	isV6 := strings.Contains(inner.LocalAddr().String(), "[")
	for i := 0; i < 100; i++ {
		inode, err = getUDPConnInode(os.Getpid(), inner)
		if err == nil {
			_, err = getUDPProcStats(inode, isV6)
		}
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}
	return linuxKernelStatsTracker{inode: inode, isV6: isV6}, nil
}

func (st linuxKernelStatsTracker) stats() (UDPProcStats, error) {
	return getUDPProcStats(st.inode, st.isV6)
}

// getUDPConnInode returns the inode of the socket of conn, by looking for its
// fd in the list of fds of process pid.
func getUDPConnInode(pid int, conn *net.UDPConn) (int, error) {
	sysConn, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("unable to extract SyscallConn: %v", err)
	}

	var inode int
	var inodeErr error
	err = sysConn.Control(func(fd uintptr) {
		link := filepath.Join("/proc", strconv.Itoa(pid), "fd",
			strconv.FormatUint(uint64(fd), 10))
		target, err := os.Readlink(link)
		if err != nil {
			inodeErr = fmt.Errorf("unable to read link %s: %w", link, err)
			return
		}
		if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
			inodeErr = fmt.Errorf("fd %d is not a socket (%s)", fd, target)
			return
		}
		inodeStr := strings.TrimSuffix(strings.TrimPrefix(target, "socket:["), "]")
		inodeInt, err := strconv.ParseInt(inodeStr, 10, 64)
		if err != nil {
			inodeErr = fmt.Errorf("unable to decode inode as a number: %v", err)
			return
		}
		inode = int(inodeInt)
	})
	if err == nil && inodeErr != nil {
		err = inodeErr
	}
	return inode, err
}

var spaceRe = regexp.MustCompile(`\ +`)

// getUDPProcStats returns kernel socket stats for the given inode.
func getUDPProcStats(inode int, isV6 bool) (UDPProcStats, error) {
	var stats UDPProcStats

	procNetFname := "/proc/net/udp"
	if isV6 {
		procNetFname = "/proc/net/udp6"
	}

	f, err := os.Open(procNetFname)
	if err != nil {
		return stats, fmt.Errorf("unable to open %s: %v", procNetFname, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(bufio.NewReader(f))
	for scanner.Scan() {
		cols := spaceRe.Split(strings.TrimSpace(scanner.Text()), -1)
		if len(cols) != 13 {
			continue
		}

		in, err := strconv.Atoi(cols[9])
		if err != nil || in != inode {
			continue
		}

		txrx := strings.Split(cols[4], ":")
		if len(txrx) != 2 {
			return stats, fmt.Errorf("tx:rx col not correctly split")
		}
		tx, err := strconv.ParseInt(txrx[0], 16, 64)
		if err != nil {
			return stats, fmt.Errorf("tx not a number: %v", err)
		}
		rx, err := strconv.ParseInt(txrx[1], 16, 64)
		if err != nil {
			return stats, fmt.Errorf("rx not a number: %v", err)
		}
		stats.TXQueue, stats.RXQueue = int(tx), int(rx)
		if stats.Drops, err = strconv.Atoi(cols[12]); err != nil {
			return stats, fmt.Errorf("drops not a number: %v", err)
		}
		return stats, nil
	}

	return stats, fmt.Errorf("could not find stats for target inode "+
		"%d (v6=%v)", inode, isV6)
}
