//go:build unix && !linux

package platform

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Method is the strategy Transfer uses on this platform.
const Method = ReadWrite

const bufferSize = 64 << 10 // 64 KiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// Transfer reads one chunk from srcFd and writes all of it to dstFd using a
// pooled buffer. Platforms without splice(2) pay for one user-space copy.
// A return of 0 bytes means srcFd reached end of input.
func Transfer(srcFd, dstFd int) (int64, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var n int
	for {
		var err error
		n, err = unix.Read(srcFd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, classify("read", err)
		}
		break
	}

	written := 0
	for written < n {
		w, err := unix.Write(dstFd, buf[written:n])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return int64(written), classify("write", err)
		}
		written += w
	}
	return int64(n), nil
}
