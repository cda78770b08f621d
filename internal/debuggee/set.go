package debuggee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bamsammich/dnetd/internal/event"
)

var (
	ErrSpoolEmpty    = errors.New("spool is empty")
	ErrSpoolOccupied = errors.New("spool is not empty")
)

// Options configures a Set.
type Options struct {
	// OnEvent receives lifecycle events. RelayClosed events arrive on relay
	// goroutines, so it must be safe for concurrent use. Defaults to
	// event.Discard.
	OnEvent event.Handler
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Set tracks attached debuggees by PID and keeps at most one spooled,
// not-yet-attached debuggee ready for the next connection.
//
// A Set is driven by a single goroutine (the accept loop) and is not safe
// for concurrent use.
type Set struct {
	tmpl   Template
	opts   Options
	log    *slog.Logger
	active map[int]*Debuggee
	spool  *Debuggee
}

// NewSet creates an empty Set that spawns children from tmpl.
func NewSet(tmpl Template, opts Options) *Set {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.OnEvent == nil {
		opts.OnEvent = event.Discard
	}
	return &Set{
		tmpl:   tmpl,
		opts:   opts,
		log:    log,
		active: make(map[int]*Debuggee),
	}
}

// SpawnAhead starts a new child and parks it in the spool. It fails with
// ErrSpoolOccupied, without spawning anything, if the spool already holds
// one.
func (s *Set) SpawnAhead() (int, error) {
	if s.spool != nil {
		return 0, ErrSpoolOccupied
	}

	d, err := spawn(s.tmpl, s.log, s.opts.OnEvent)
	if err != nil {
		s.emit(event.Event{Type: event.SpawnFailed, Timestamp: time.Now(), Error: err})
		return 0, fmt.Errorf("spawn debuggee: %w", err)
	}
	s.spool = d
	d.emit(event.Event{Type: event.Spawned}, nil)
	return d.pid, nil
}

// Attach hands conn to the spooled debuggee and starts tracking it. It fails
// with ErrSpoolEmpty, touching nothing, if no debuggee is spooled. The spool
// is left empty either way; the caller refills it with SpawnAhead.
func (s *Set) Attach(conn Socket, timeout time.Duration) error {
	if s.spool == nil {
		return ErrSpoolEmpty
	}

	d := s.spool
	s.spool = nil
	if err := d.Attach(conn, timeout); err != nil {
		d.Close()
		return fmt.Errorf("attach debuggee %d: %w", d.pid, err)
	}
	s.active[d.pid] = d
	return nil
}

// Sweep runs Cleanup on every attached debuggee and removes the ones whose
// child has exited, returning their exit status by PID. A debuggee whose
// cleanup fails is removed as well and its error is joined into the
// returned error; the other entries are still processed.
func (s *Set) Sweep() (map[int]*os.ProcessState, error) {
	now := time.Now()
	exited := make(map[int]*os.ProcessState)
	var (
		errs   []error
		failed []int
	)

	for pid, d := range s.active {
		state, err := d.Cleanup(now)
		s.log.Log(context.Background(), LevelTrace, "cleaned up debuggee",
			"pid", pid, "exited", state != nil, "error", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("debuggee %d: %w", pid, err))
			failed = append(failed, pid)
			continue
		}
		if state != nil {
			exited[pid] = state
		}
	}

	for pid, state := range exited {
		d := s.active[pid]
		delete(s.active, pid)
		d.Close()
		d.emit(event.Event{Type: event.Reaped, State: state}, d.attachedComms())
	}
	for _, pid := range failed {
		d := s.active[pid]
		delete(s.active, pid)
		d.Close()
	}

	return exited, errors.Join(errs...)
}

// Close kills and releases every debuggee, attached or spooled.
func (s *Set) Close() {
	for pid, d := range s.active {
		d.Close()
		delete(s.active, pid)
	}
	if s.spool != nil {
		s.spool.Close()
		s.spool = nil
	}
}

// Len returns the number of attached debuggees.
func (s *Set) Len() int { return len(s.active) }

// SpoolPID returns the PID of the spooled debuggee, if there is one.
func (s *Set) SpoolPID() (int, bool) {
	if s.spool == nil {
		return 0, false
	}
	return s.spool.pid, true
}

// Get returns the attached debuggee with the given PID.
func (s *Set) Get(pid int) (*Debuggee, bool) {
	d, ok := s.active[pid]
	return d, ok
}

func (s *Set) emit(ev event.Event) {
	s.opts.OnEvent(ev)
}
