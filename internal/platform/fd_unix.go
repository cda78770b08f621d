//go:build unix

package platform

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// TransferFiles runs Transfer between the descriptors of src and dst while
// holding a reference on both. A concurrent Close of either file is deferred
// by the runtime until the transfer returns, so the descriptor number cannot
// be recycled underneath a blocked call. Once either file has been closed
// TransferFiles returns an error matching os.ErrClosed.
func TransferFiles(src, dst *os.File) (int64, error) {
	var (
		n           int64
		transferErr error
	)
	err := withFd(src, func(in int) error {
		return withFd(dst, func(out int) error {
			n, transferErr = Transfer(in, out)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return n, transferErr
}

// Shutdown calls shutdown(2) on a socket file. ENOTCONN is not an error: the
// socket is already disconnected, which is what the caller asked for.
func Shutdown(f *os.File, how int) error {
	return withFd(f, func(fd int) error {
		if err := unix.Shutdown(fd, how); err != nil && err != unix.ENOTCONN {
			return fmt.Errorf("shutdown %s: %w", f.Name(), err)
		}
		return nil
	})
}

// DupBlocking duplicates the descriptor behind conn into a new blocking,
// close-on-exec file that the Go poller does not manage. The original conn is
// left open; callers usually close it right away and keep the duplicate.
func DupBlocking(conn syscall.Conn, name string) (*os.File, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("syscall conn: %w", err)
	}

	dup := -1
	var dupErr error
	if err := raw.Control(func(fd uintptr) {
		dup, dupErr = unix.FcntlInt(fd, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	if dupErr != nil {
		return nil, fmt.Errorf("dup: %w", dupErr)
	}

	// The duplicate shares the open file description, so this also clears
	// O_NONBLOCK for the original. It must not be used for I/O afterwards.
	if err := unix.SetNonblock(dup, false); err != nil {
		unix.Close(dup)
		return nil, fmt.Errorf("set blocking: %w", err)
	}
	return os.NewFile(uintptr(dup), name), nil //nolint:gosec // G115: fd is non-negative
}

// Pipe returns a blocking, close-on-exec pipe. Unlike os.Pipe the ends are
// not registered with the poller, which Transfer requires.
func Pipe() (r, w *os.File, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, fmt.Errorf("pipe2: %w", err)
	}
	r = os.NewFile(uintptr(p[0]), "|0") //nolint:gosec // G115: fd is non-negative
	w = os.NewFile(uintptr(p[1]), "|1") //nolint:gosec // G115: fd is non-negative
	return r, w, nil
}

func withFd(f *os.File, fn func(fd int) error) error {
	raw, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var fnErr error
	if err := raw.Control(func(fd uintptr) {
		fnErr = fn(int(fd)) //nolint:gosec // G115: fd values are small non-negative integers
	}); err != nil {
		// Control only fails once the file is closing.
		return &os.PathError{Op: "control", Path: f.Name(), Err: os.ErrClosed}
	}
	return fnErr
}
