//go:build linux

package platform

import (
	"math"

	"golang.org/x/sys/unix"
)

// Method is the strategy Transfer uses on this platform.
const Method = SpliceMove

// Transfer moves as many bytes from srcFd to dstFd as the kernel accepts in a
// single splice(2) call. Both descriptors must be in blocking mode and at
// least one must be a pipe. A return of 0 bytes means srcFd reached end of
// input. The bytes never pass through user space.
//
// splice holds the pipe's lock while it sleeps on the other descriptor, which
// would starve the pipe's other end, so Transfer first waits for srcFd to
// become readable and only then splices.
func Transfer(srcFd, dstFd int) (int64, error) {
	if err := waitReadable(srcFd); err != nil {
		return 0, classify("poll", err)
	}
	for {
		n, err := unix.Splice(srcFd, nil, dstFd, nil, math.MaxInt, unix.SPLICE_F_MOVE)
		if err == nil {
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		return 0, classify("splice", err)
	}
}

// waitReadable blocks until fd has data, end of input, or an error pending.
func waitReadable(fd int) error {
	if fd < 0 {
		return unix.EBADF
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLRDHUP}} //nolint:gosec // G115: fd is non-negative
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return unix.EBADF
		}
		return nil
	}
}
