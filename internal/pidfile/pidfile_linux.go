//go:build linux

package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// PidFile is a sealed memfd holding the PID of the next child to serve a
// connection. Readers open /proc/<daemon>/fd/<Fd()> and see "<pid>\n"
// followed by zero padding. Only the daemon's own mapping can change the
// contents; the seals forbid writes through any new descriptor or mapping
// and any change of size.
type PidFile struct {
	mu   sync.Mutex
	file *os.File
	mem  []byte
}

// New creates the memfd, maps it and applies the seals.
func New() (*PidFile, error) {
	fd, err := unix.MemfdCreate(Name, unix.MFD_ALLOW_SEALING|unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), "memfd:"+Name)

	p, err := setup(fd)
	if err != nil {
		file.Close()
		return nil, err
	}
	p.file = file
	return p, nil
}

func setup(fd int) (*PidFile, error) {
	if err := unix.Ftruncate(fd, Size); err != nil {
		return nil, fmt.Errorf("truncate: %w", err)
	}

	// The shared mapping has to exist before F_SEAL_FUTURE_WRITE, which
	// only rejects mappings and writes made afterwards.
	mem, err := unix.Mmap(fd, 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	seals := unix.F_SEAL_FUTURE_WRITE | unix.F_SEAL_GROW | unix.F_SEAL_SHRINK
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		unix.Munmap(mem) //nolint:errcheck // already failing
		return nil, fmt.Errorf("add seals: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SEAL); err != nil {
		unix.Munmap(mem) //nolint:errcheck // already failing
		return nil, fmt.Errorf("seal seals: %w", err)
	}

	return &PidFile{mem: mem}, nil
}

// Publish replaces the contents with "<pid>\n".
func (p *PidFile) Publish(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem == nil {
		return ErrClosed
	}
	line := strconv.AppendInt(nil, int64(pid), 10)
	line = append(line, '\n')
	if len(line) > len(p.mem) {
		return fmt.Errorf("pid %d does not fit in %d bytes", pid, Size)
	}

	clear(p.mem)
	copy(p.mem, line)
	return nil
}

// Fd returns the memfd's descriptor number in this process.
func (p *PidFile) Fd() int {
	return int(p.file.Fd())
}

// Close unmaps and closes the memfd.
func (p *PidFile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mem == nil {
		return nil
	}
	err := unix.Munmap(p.mem)
	p.mem = nil
	return errors.Join(err, p.file.Close())
}
