//go:build unix

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// classify maps a transfer errno onto the expected outcomes. Errnos that can
// only arise from a caller breaking descriptor lifecycle rules panic.
func classify(op string, err error) error {
	switch err {
	case unix.EPIPE:
		return ErrBrokenPipe
	case unix.ECONNRESET:
		return ErrConnReset
	case unix.EINVAL:
		return ErrInvalidArgument
	case unix.EAGAIN:
		panic(op + ": a descriptor is in non-blocking mode and the transfer would block")
	case unix.EBADF:
		panic(op + ": a descriptor is not valid or lacks the required read/write mode")
	case unix.ESPIPE:
		panic(op + ": an offset was given for a pipe descriptor")
	case unix.ENOMEM:
		panic(op + ": out of memory")
	default:
		panic(fmt.Sprintf("%s: unexpected error: %v", op, err))
	}
}
