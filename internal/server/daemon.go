// Package server runs the accept loop: every inbound TCP connection is handed
// to the spooled debuggee, a fresh one is spawned behind it, and its PID is
// published.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/dnetd/internal/debuggee"
	"github.com/bamsammich/dnetd/internal/event"
	"github.com/bamsammich/dnetd/internal/platform"
	"github.com/bamsammich/dnetd/internal/stats"
)

// Publisher advertises the PID of the debuggee the next connection gets.
type Publisher interface {
	Publish(pid int) error
}

// DaemonConfig configures a dnetd daemon.
type DaemonConfig struct {
	ListenAddr string
	Template   debuggee.Template
	// Timeout is the idle timeout of every session, 0 for none.
	Timeout time.Duration
	// AcceptRate caps accepted connections per second; 0 disables it.
	AcceptRate float64
	// Publisher is optional.
	Publisher Publisher
	// OnEvent, if set, sees every lifecycle event after the daemon has
	// logged and counted it. It must be safe for concurrent use.
	OnEvent event.Handler
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Daemon owns the listener and the debuggee set.
type Daemon struct {
	cfg      DaemonConfig
	listener *net.TCPListener
	set      *debuggee.Set
	limiter  *rate.Limiter
	stats    *stats.Collector
	log      *slog.Logger
}

// NewDaemon binds the listener. Call Serve to start accepting connections.
func NewDaemon(cfg DaemonConfig) (*Daemon, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	d := &Daemon{
		cfg:      cfg,
		listener: ln.(*net.TCPListener),
		limiter:  NewAcceptLimiter(cfg.AcceptRate),
		stats:    stats.NewCollector(),
		log:      log,
	}
	d.set = debuggee.NewSet(cfg.Template, debuggee.Options{
		OnEvent: d.handleEvent,
		Logger:  log,
	})
	return d, nil
}

// Addr returns the listener's address (useful when listening on :0).
func (d *Daemon) Addr() *net.TCPAddr {
	return d.listener.Addr().(*net.TCPAddr)
}

// Stats returns the daemon's counters.
func (d *Daemon) Stats() *stats.Collector {
	return d.stats
}

// Serve accepts connections until ctx is cancelled. On return every child
// has been killed and the listener is closed. A cancelled context is a clean
// shutdown and yields nil.
func (d *Daemon) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.listener.Close() })
	defer stop()
	defer func() {
		d.listener.Close()
		d.set.Close()
		d.log.Info("dnetd stopped", "stats", d.stats.Snapshot().String())
	}()

	if err := d.spawnAhead(); err != nil {
		return err
	}
	d.log.Info("dnetd listening", "addr", d.listener.Addr(), "command", d.cfg.Template.Path,
		"transfer", platform.Method.String())

	for {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept limiter: %w", err)
			}
		}

		conn, err := d.listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		d.sweep()
		d.log.Info("incoming connection", "remote", conn.RemoteAddr())

		if err := d.set.Attach(conn, d.cfg.Timeout); err != nil {
			// The spool is always refilled before the next accept, so this
			// is a failure to dup the socket. The connection is dropped.
			d.log.Warn("attach failed", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
		}

		if err := d.spawnAhead(); err != nil {
			return err
		}
	}
}

// spawnAhead refills the spool and publishes the new PID.
func (d *Daemon) spawnAhead() error {
	pid, err := d.set.SpawnAhead()
	if errors.Is(err, debuggee.ErrSpoolOccupied) {
		return nil
	}
	if err != nil {
		return err
	}
	d.log.Info("started debuggee", "pid", pid)

	if d.cfg.Publisher == nil {
		return nil
	}
	if err := d.cfg.Publisher.Publish(pid); err != nil {
		return fmt.Errorf("publish pid %d: %w", pid, err)
	}
	return nil
}

func (d *Daemon) sweep() {
	exited, err := d.set.Sweep()
	if err != nil {
		d.log.Warn("sweep failed", "error", err)
	}
	if len(exited) > 0 {
		d.log.Debug("swept debuggees", "exited", len(exited), "active", d.set.Len())
	}
}

func (d *Daemon) handleEvent(ev event.Event) {
	d.stats.Observe(ev)

	log := d.log.With("pid", ev.PID)
	if ev.Session != "" {
		log = log.With("session", ev.Session)
	}

	switch ev.Type {
	case event.Spawned:
		log.Debug("debuggee spawned")
	case event.SpawnFailed:
		log.Error("spawn failed", "error", ev.Error)
	case event.Attached:
		log.Info("session attached", "remote", ev.Remote)
	case event.RelayClosed:
		log.Debug("session closed", "in", ev.BytesIn, "out", ev.BytesOut)
	case event.IdleTimeout:
		log.Info("session idle timeout", "timeout", d.cfg.Timeout)
	case event.Reaped:
		status := ""
		if ev.State != nil {
			status = ev.State.String()
		}
		log.Info("debuggee exited", "status", status,
			"in", stats.FormatBytes(ev.BytesIn), "out", stats.FormatBytes(ev.BytesOut))
	}

	if d.cfg.OnEvent != nil {
		d.cfg.OnEvent(ev)
	}
}
