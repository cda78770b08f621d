package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultDaemonDiscoveryPath is where a running daemon advertises itself
// unless --discovery says otherwise.
const DefaultDaemonDiscoveryPath = "/run/dnetd/daemon.toml"

// DaemonDiscovery tells other processes how to find a running daemon and
// its next-PID memfd, which is readable as /proc/<PID>/fd/<PidFD>.
type DaemonDiscovery struct {
	PID     int    `toml:"pid"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	PidFD   int    `toml:"pid_fd,omitempty"`
}

// PidFilePath returns the /proc path of the daemon's next-PID memfd, or ""
// if the daemon did not publish one.
func (d DaemonDiscovery) PidFilePath() string {
	if d.PidFD <= 0 {
		return ""
	}
	return fmt.Sprintf("/proc/%d/fd/%d", d.PID, d.PidFD)
}

// WriteDaemonDiscovery writes the discovery file with world-readable
// permissions (0644). Creates the parent directory if needed.
func WriteDaemonDiscovery(path string, d DaemonDiscovery) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create discovery dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return fmt.Errorf("encode daemon discovery: %w", err)
	}

	//nolint:gosec // G306: debuggers running as other users read it
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadDaemonDiscovery reads the discovery file. Returns os.ErrNotExist if
// the file does not exist.
func ReadDaemonDiscovery(path string) (DaemonDiscovery, error) {
	var d DaemonDiscovery
	_, err := toml.DecodeFile(path, &d)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DaemonDiscovery{}, os.ErrNotExist
		}
		return DaemonDiscovery{}, err
	}
	return d, nil
}

// RemoveDaemonDiscovery removes the discovery file (best-effort).
func RemoveDaemonDiscovery(path string) {
	os.Remove(path) //nolint:errcheck // best-effort cleanup on shutdown
}
