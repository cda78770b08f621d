package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/dnetd/internal/config"
	"github.com/bamsammich/dnetd/internal/logging"
)

func ptr[T any](v T) *T { return &v }

// parsedRoot parses args into fresh options without running the daemon.
func parsedRoot(t *testing.T, args ...string) (*options, func(config.DefaultsConfig) error) {
	t.Helper()
	opts := defaultOptions()
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags(args))
	return opts, func(d config.DefaultsConfig) error { return applyConfigDefaults(cmd, d, opts) }
}

func TestFlagDefaults(t *testing.T) {
	t.Parallel()

	opts, _ := parsedRoot(t)
	assert.Equal(t, "0.0.0.0", opts.address)
	assert.Equal(t, uint16(1024), opts.port)
	assert.Zero(t, opts.timeout)
	assert.Zero(t, opts.verbosity)
	assert.Equal(t, logging.FormatAuto, opts.logFormat)
	assert.Equal(t, config.DefaultDaemonDiscoveryPath, opts.discovery)
}

func TestFlagsParse(t *testing.T) {
	t.Parallel()

	opts, _ := parsedRoot(t, "-a", "127.0.0.1", "-p", "4000", "-u", "nobody", "-t", "30", "-vvv",
		"--accept-rate", "5", "--log-format", "json", "--discovery", "")
	assert.Equal(t, "127.0.0.1", opts.address)
	assert.Equal(t, uint16(4000), opts.port)
	assert.Equal(t, "nobody", opts.user)
	assert.Equal(t, 30*time.Second, opts.timeout)
	assert.Equal(t, 3, opts.verbosity)
	assert.InDelta(t, 5.0, opts.acceptRate, 1e-9)
	assert.Equal(t, logging.FormatJSON, opts.logFormat)
	assert.Empty(t, opts.discovery)
}

func TestFlagsReject(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"-p", "70000"},
		{"-p", "http"},
		{"-t", "-5"},
		{"-t", "soon"},
		{"--log-format", "xml"},
	} {
		cmd := newRootCmd(defaultOptions())
		assert.Error(t, cmd.ParseFlags(args), "%v", args)
	}
}

func TestCommandFlagsStayWithCommand(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{"-p", "2000", "cat", "-v", "-u"}))
	assert.Equal(t, []string{"cat", "-v", "-u"}, cmd.Flags().Args())

	assert.Zero(t, opts.verbosity)
	assert.Empty(t, opts.user)
}

func TestApplyConfigDefaults(t *testing.T) {
	t.Parallel()

	opts, apply := parsedRoot(t, "-p", "5000")
	require.NoError(t, apply(config.DefaultsConfig{
		Address:    ptr("::1"),
		Port:       ptr(6000),
		User:       ptr("daemon"),
		Timeout:    ptr(10),
		AcceptRate: ptr(1.5),
		Verbosity:  ptr(2),
		LogFormat:  ptr("text"),
		Discovery:  ptr("/tmp/dnetd.toml"),
	}))

	assert.Equal(t, "::1", opts.address)
	// Set on the command line, so the config value is ignored.
	assert.Equal(t, uint16(5000), opts.port)
	assert.Equal(t, "daemon", opts.user)
	assert.Equal(t, 10*time.Second, opts.timeout)
	assert.InDelta(t, 1.5, opts.acceptRate, 1e-9)
	assert.Equal(t, 2, opts.verbosity)
	assert.Equal(t, logging.FormatText, opts.logFormat)
	assert.Equal(t, "/tmp/dnetd.toml", opts.discovery)
}

func TestApplyConfigDefaultsInvalid(t *testing.T) {
	t.Parallel()

	_, apply := parsedRoot(t)
	assert.Error(t, apply(config.DefaultsConfig{Port: ptr(99999)}))
	assert.Error(t, apply(config.DefaultsConfig{Timeout: ptr(-1)}))
	assert.Error(t, apply(config.DefaultsConfig{LogFormat: ptr("xml")}))
}

func TestRootRequiresCommand(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(defaultOptions())
	assert.Error(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"cat"}))
}

func TestGenDocsMarkdown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cmd := newRootCmd(defaultOptions())
	cmd.SetArgs([]string{"gen-docs", "--dir", dir, "--format", "markdown"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, "dnetd.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "--timeout")
	assert.NotContains(t, string(data), "Auto generated by spf13/cobra")

	// Hidden commands are skipped; visible subcommands get their own page.
	_, err = os.Stat(filepath.Join(dir, "dnetd_gen-docs.md"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "dnetd_next-pid.md"))
	assert.NoError(t, err)
}

func TestGenDocsMan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cmd := newRootCmd(defaultOptions())
	cmd.SetArgs([]string{"gen-docs", "--dir", dir})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(dir, "dnetd.8"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `.TH "DNETD" "8"`)
}

func TestGenDocsUnknownFormat(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(defaultOptions())
	cmd.SetArgs([]string{"gen-docs", "--dir", t.TempDir(), "--format", "pdf"})
	assert.ErrorContains(t, cmd.Execute(), "unknown docs format")
}
