//go:build linux

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/dnetd/internal/config"
	"github.com/bamsammich/dnetd/internal/pidfile"
)

func TestNextPID(t *testing.T) {
	t.Parallel()

	pf, err := pidfile.New()
	require.NoError(t, err)
	defer pf.Close()
	require.NoError(t, pf.Publish(4242))

	path := filepath.Join(t.TempDir(), "daemon.toml")
	require.NoError(t, config.WriteDaemonDiscovery(path, config.DaemonDiscovery{
		PID:   os.Getpid(),
		Port:  1024,
		PidFD: pf.Fd(),
	}))

	var out bytes.Buffer
	cmd := newRootCmd(defaultOptions())
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"next-pid", "--discovery", path})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "4242\n", out.String())

	// A later publish is visible through the same path.
	require.NoError(t, pf.Publish(7))
	pid, err := readNextPID(path)
	require.NoError(t, err)
	assert.Equal(t, 7, pid)
}

func TestNextPIDWithoutMemfd(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "daemon.toml")
	require.NoError(t, config.WriteDaemonDiscovery(path, config.DaemonDiscovery{PID: os.Getpid(), Port: 1024}))

	_, err := readNextPID(path)
	assert.ErrorContains(t, err, "no next-PID memfd")
}

func TestNextPIDMissingDiscovery(t *testing.T) {
	t.Parallel()

	_, err := readNextPID(filepath.Join(t.TempDir(), "daemon.toml"))
	assert.ErrorContains(t, err, "no daemon discovery file")
}
