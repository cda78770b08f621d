package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/dnetd/internal/config"
	"github.com/bamsammich/dnetd/internal/debuggee"
	"github.com/bamsammich/dnetd/internal/logging"
	"github.com/bamsammich/dnetd/internal/pidfile"
	"github.com/bamsammich/dnetd/internal/server"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// options holds the parsed command line.
type options struct {
	address     string
	port        uint16
	user        string
	timeout     time.Duration
	acceptRate  float64
	verbosity   int
	logFile     string
	logFormat   logging.Format
	configFile  string
	discovery   string
	showVersion bool
}

func defaultOptions() *options {
	return &options{
		address:   "0.0.0.0",
		port:      1024,
		logFormat: logging.FormatAuto,
		discovery: config.DefaultDaemonDiscoveryPath,
	}
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dnetd [flags] [--] <command> [args...]",
		Short: "Hand every TCP connection to a freshly spawned process",
		Long: `dnetd listens on a TCP port and gives each inbound connection to its own
instance of <command>: the socket becomes the child's stdin and stdout, and
bytes move between them with splice(2). One child is always started ahead of
time, and its PID is published in a sealed memfd named "dnetd_nextpid" so a
debugger can attach before the connection arrives. The discovery file names
the daemon PID and the memfd's descriptor number.

With --timeout, a session that moves no data for that many seconds is shut
down; the child then sees end of input and is expected to exit.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(os.Stdout, "dnetd %s\n", version)
				return nil
			}
			return runDaemon(cmd, opts, args)
		},
	}

	flags := rootCmd.Flags()
	// Everything after the command belongs to the command.
	flags.SetInterspersed(false)

	flags.StringVarP(&opts.address, "address", "a", opts.address, "address on which to listen")
	flags.VarP(portFlag{port: &opts.port}, "port", "p", "port on which to listen")
	flags.StringVarP(&opts.user, "user", "u", "", "run children as this user name or uid (default: current)")
	flags.VarP(timeoutFlag{timeout: &opts.timeout}, "timeout", "t", "idle timeout of a session in seconds (default: none)")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase message verbosity (repeatable)")
	flags.Float64Var(&opts.acceptRate, "accept-rate", 0, "maximum connections accepted per second (0: unlimited)")
	flags.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	flags.Var(formatFlag{format: &opts.logFormat}, "log-format", "stderr log format: auto, text or json")
	flags.StringVar(&opts.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dnetd/config.toml)")
	flags.StringVar(&opts.discovery, "discovery", opts.discovery, `daemon discovery file ("" to disable)`)
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	rootCmd.AddCommand(newDocsCmd(), newNextPIDCmd())
	return rootCmd
}

func run() int {
	if err := newRootCmd(defaultOptions()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var rtErr *runtimeError
		if errors.As(err, &rtErr) {
			return 1
		}
		return 2
	}
	return 0
}

// runtimeError marks failures after startup, which exit 1 rather than the
// usage status 2.
type runtimeError struct {
	err error
}

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

//nolint:revive // cyclomatic: config + logging + pidfile + discovery wiring
func runDaemon(cmd *cobra.Command, opts *options, args []string) error {
	cfg, cfgErr := loadConfig(opts.configFile)
	if err := applyConfigDefaults(cmd, cfg.Defaults, opts); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Verbosity: opts.verbosity,
		Format:    opts.logFormat,
		LogFile:   opts.logFile,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if cfgErr != nil {
		slog.Warn("failed to load config", "error", cfgErr)
	}

	addr, err := config.ParseAddress(opts.address)
	if err != nil {
		return err
	}

	tmpl := debuggee.Template{Path: args[0], Args: args[1:]}
	if opts.user != "" {
		uid, err := config.ParseUser(opts.user)
		if err != nil {
			return err
		}
		tmpl.UID = &uid
	}

	pf, err := pidfile.New()
	switch {
	case errors.Is(err, errors.ErrUnsupported):
		slog.Warn("next-PID memfd not supported on this platform")
	case err != nil:
		return &runtimeError{fmt.Errorf("pidfile: %w", err)}
	default:
		defer pf.Close()
	}

	daemonCfg := server.DaemonConfig{
		ListenAddr: net.JoinHostPort(addr.String(), strconv.Itoa(int(opts.port))),
		Template:   tmpl,
		Timeout:    opts.timeout,
		AcceptRate: opts.acceptRate,
		Logger:     logger,
	}
	if pf != nil {
		daemonCfg.Publisher = pf
	}

	daemon, err := server.NewDaemon(daemonCfg)
	if err != nil {
		return &runtimeError{err}
	}

	if opts.discovery != "" {
		d := config.DaemonDiscovery{
			PID:     os.Getpid(),
			Address: addr.String(),
			Port:    daemon.Addr().Port,
		}
		if pf != nil {
			d.PidFD = pf.Fd()
		}
		if err := config.WriteDaemonDiscovery(opts.discovery, d); err != nil {
			slog.Warn("failed to write daemon discovery file", "path", opts.discovery, "error", err)
		} else {
			slog.Info("wrote daemon discovery file", "path", opts.discovery, "next_pid", d.PidFilePath())
			defer config.RemoveDaemonDiscovery(opts.discovery)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Serve(ctx); err != nil {
		return &runtimeError{err}
	}
	return nil
}

// loadConfig reads --config if given, the XDG config file otherwise. An
// explicitly named file has to exist.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	if _, err := os.Stat(path); err != nil {
		return config.Config{}, err
	}
	return config.LoadFile(path)
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, opts *options) error {
	flags := cmd.Flags()
	if !flags.Changed("address") && defaults.Address != nil {
		opts.address = *defaults.Address
	}
	if !flags.Changed("port") && defaults.Port != nil {
		if err := (portFlag{port: &opts.port}).Set(strconv.Itoa(*defaults.Port)); err != nil {
			return err
		}
	}
	if !flags.Changed("user") && defaults.User != nil {
		opts.user = *defaults.User
	}
	if !flags.Changed("timeout") && defaults.Timeout != nil {
		d, err := config.ParseTimeout(int64(*defaults.Timeout))
		if err != nil {
			return err
		}
		opts.timeout = d
	}
	if !flags.Changed("accept-rate") && defaults.AcceptRate != nil {
		opts.acceptRate = *defaults.AcceptRate
	}
	if !flags.Changed("verbose") && defaults.Verbosity != nil {
		opts.verbosity = *defaults.Verbosity
	}
	if !flags.Changed("log-format") && defaults.LogFormat != nil {
		if err := (formatFlag{format: &opts.logFormat}).Set(*defaults.LogFormat); err != nil {
			return err
		}
	}
	if !flags.Changed("discovery") && defaults.Discovery != nil {
		opts.discovery = *defaults.Discovery
	}
	return nil
}
