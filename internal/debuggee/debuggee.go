// Package debuggee owns the child processes behind dnetd sessions. A
// Debuggee is spawned ahead of time, attached to an accepted socket, and
// relays bytes between that socket and the child's stdin/stdout with
// splice(2) until either side closes. A Set keeps one spooled Debuggee ready
// and tracks every attached one until its exit status has been reaped.
package debuggee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/dnetd/internal/event"
	"github.com/bamsammich/dnetd/internal/logging"
	"github.com/bamsammich/dnetd/internal/platform"
)

// LevelTrace is the level of per-relay chatter.
const LevelTrace = logging.LevelTrace

var (
	ErrAlreadyAttached = errors.New("debuggee already attached")
	ErrClosed          = errors.New("debuggee closed")
)

// Socket is the connection handed to Attach. *net.TCPConn and *net.UnixConn
// satisfy it.
type Socket interface {
	syscall.Conn
	Close() error
}

type direction int

const (
	incoming direction = iota // socket -> child stdin
	outgoing                  // child stdout -> socket
)

func (d direction) String() string {
	if d == incoming {
		return "incoming"
	}
	return "outgoing"
}

// Debuggee is one child process and, once attached, its socket.
type Debuggee struct {
	pid     int
	cmd     *exec.Cmd
	log     *slog.Logger
	onEvent event.Handler

	// exited is closed by the reaper goroutine once cmd.Wait returns;
	// state and waitErr are written before that.
	exited  chan struct{}
	state   *os.ProcessState
	waitErr error

	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
	lastActivity atomic.Int64 // unix nanoseconds of the last relayed chunk

	// relaysDone is closed when both relay goroutines have returned.
	relaysDone chan struct{}

	mu     sync.RWMutex
	stdin  *os.File // write end of the child's stdin
	stdout *os.File // read end of the child's stdout
	comms  *comms
	relays int // relay goroutines still running
	closed bool
}

func spawn(tmpl Template, log *slog.Logger, onEvent event.Handler) (*Debuggee, error) {
	stdinR, stdinW, err := platform.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := platform.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	cmd := tmpl.command()
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	// Stderr stays nil, which exec connects to the null device.

	startErr := cmd.Start()
	// The child holds its own copies now.
	stdinR.Close()
	stdoutW.Close()
	if startErr != nil {
		stdinW.Close()
		stdoutR.Close()
		return nil, fmt.Errorf("start %s: %w", tmpl.Path, startErr)
	}

	d := &Debuggee{
		pid:        cmd.Process.Pid,
		cmd:        cmd,
		log:        log.With("pid", cmd.Process.Pid),
		onEvent:    onEvent,
		exited:     make(chan struct{}),
		relaysDone: make(chan struct{}),
		stdin:      stdinW,
		stdout:     stdoutR,
	}
	go d.reap()
	return d, nil
}

// reap waits for the child so its exit status can be queried without
// blocking. A non-zero exit is a status, not an error.
func (d *Debuggee) reap() {
	err := d.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		d.waitErr = fmt.Errorf("wait: %w", err)
	}
	d.state = d.cmd.ProcessState
	close(d.exited)
}

// PID returns the child's process id.
func (d *Debuggee) PID() int { return d.pid }

// Attached reports whether a socket has ever been attached.
func (d *Debuggee) Attached() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.comms != nil
}

// Relaying reports whether the debuggee is attached and has not yet shut its
// socket down.
func (d *Debuggee) Relaying() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.comms != nil && d.comms.state == relaying
}

// Deadline returns the armed idle deadline, if any.
func (d *Debuggee) Deadline() (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.comms == nil || d.comms.deadline.IsZero() {
		return time.Time{}, false
	}
	return d.comms.deadline, true
}

func (d *Debuggee) attachedComms() *comms {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.comms
}

// Done is closed once both relay goroutines have returned. It never closes
// for a debuggee that was not attached.
func (d *Debuggee) Done() <-chan struct{} { return d.relaysDone }

// Attach hands conn to the child and starts relaying. conn itself is closed;
// the debuggee keeps a blocking duplicate of its descriptor. timeout is the
// idle timeout, 0 for none.
func (d *Debuggee) Attach(conn Socket, timeout time.Duration) error {
	c, err := d.attach(conn, timeout)
	if err != nil {
		return err
	}
	d.emit(event.Event{Type: event.Attached}, c)
	return nil
}

func (d *Debuggee) attach(conn Socket, timeout time.Duration) (*comms, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.comms != nil {
		return nil, ErrAlreadyAttached
	}
	if d.closed {
		return nil, ErrClosed
	}

	remote := ""
	if rc, ok := conn.(interface{ RemoteAddr() net.Addr }); ok && rc.RemoteAddr() != nil {
		remote = rc.RemoteAddr().String()
	}

	sock, err := platform.DupBlocking(conn, "socket:"+remote)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	conn.Close() //nolint:errcheck // the duplicate keeps the socket alive

	session := uuid.New().String()[:8]
	c := &comms{
		sock:     sock,
		remote:   remote,
		session:  session,
		timeout:  timeout,
		log:      d.log.With("session", session, "remote", remote),
		incoming: make(chan struct{}),
		outgoing: make(chan struct{}),
		state:    relaying,
	}
	d.comms = c
	d.relays = 2
	d.lastActivity.Store(time.Now().UnixNano())

	go d.relay(incoming, c, sock, d.stdin, c.incoming)
	go d.relay(outgoing, c, d.stdout, sock, c.outgoing)
	return c, nil
}

func (d *Debuggee) relay(dir direction, c *comms, src, dst *os.File, done chan struct{}) {
	defer close(done)
	defer d.relayExited(c)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("relay panicked", "direction", dir, "panic", r)
			panic(r)
		}
	}()

	c.log.Log(context.Background(), LevelTrace, "relay started", "direction", dir)
	defer c.log.Log(context.Background(), LevelTrace, "relay stopped", "direction", dir)

	counter := &d.bytesIn
	if dir == outgoing {
		counter = &d.bytesOut
	}

	for {
		n, err := platform.TransferFiles(src, dst)
		switch {
		case err == nil && n > 0:
			counter.Add(n)
			d.lastActivity.Store(time.Now().UnixNano())

		case err == nil:
			if dir == incoming {
				d.shutdown(dir, c, "end of input from peer")
				return
			}
			// The child closed stdout. Pass the EOF on to the peer; the
			// incoming relay keeps feeding stdin.
			c.log.Debug("end of output from child")
			if err := platform.Shutdown(c.sock, unix.SHUT_WR); err != nil {
				c.log.Log(context.Background(), LevelTrace, "half-close failed", "error", err)
			}
			return

		case errors.Is(err, platform.ErrBrokenPipe):
			if dir == incoming {
				// The child closed stdin; output may still be flowing.
				c.log.Debug("broken pipe", "direction", dir)
				return
			}
			d.shutdown(dir, c, "broken pipe to peer")
			return

		case errors.Is(err, platform.ErrConnReset):
			d.shutdown(dir, c, "connection reset by peer")
			return

		case errors.Is(err, os.ErrClosed):
			// Descriptors were closed by the shutdown transition or Close.
			return

		default:
			panic(fmt.Sprintf("%s relay: %v", dir, err))
		}
	}
}

// shutdown performs the relaying -> timing transition on behalf of the relay
// in direction dir. Only the caller that wins the transition joins the
// sibling relay; a loser still closes the child's descriptors and returns.
func (d *Debuggee) shutdown(dir direction, c *comms, reason string) {
	c.log.Debug("closing session", "direction", dir, "reason", reason)

	if err := platform.Shutdown(c.sock, unix.SHUT_RDWR); err != nil {
		c.log.Log(context.Background(), LevelTrace, "socket shutdown", "error", err)
	}

	d.mu.Lock()
	performed := c.toTiming(time.Now())
	d.closeStdioLocked()
	d.mu.Unlock()

	if !performed {
		c.log.Log(context.Background(), LevelTrace, "session already closing", "direction", dir)
		return
	}
	d.emit(event.Event{Type: event.RelayClosed}, c)

	<-c.sibling(dir)
	c.log.Log(context.Background(), LevelTrace, "sibling relay joined", "direction", dir)
}

// relayExited runs as each relay returns. When the last one leaves while the
// record is still relaying (stdout ended and stdin broke, say), it performs
// the transition itself so the record always reaches timing.
func (d *Debuggee) relayExited(c *comms) {
	d.mu.Lock()
	d.relays--
	last := d.relays == 0
	performed := false
	if last && c.state == relaying {
		if err := platform.Shutdown(c.sock, unix.SHUT_RDWR); err != nil {
			c.log.Log(context.Background(), LevelTrace, "socket shutdown", "error", err)
		}
		performed = c.toTiming(time.Now())
		d.closeStdioLocked()
	}
	d.mu.Unlock()

	if performed {
		d.emit(event.Event{Type: event.RelayClosed}, c)
	}
	if last {
		close(d.relaysDone)
	}
}

// closeStdioLocked closes the daemon's ends of the child's stdin and stdout
// so the child sees end of input and is free to exit. Stderr was never
// opened. Safe to call repeatedly.
func (d *Debuggee) closeStdioLocked() {
	if d.stdin != nil {
		d.stdin.Close()
		d.stdin = nil
	}
	if d.stdout != nil {
		d.stdout.Close()
		d.stdout = nil
	}
}

// Cleanup enforces the idle timeout and reports the exit status once the
// session is over. It returns nil while the child is still running or the
// session's deadline has not passed.
//
// While relaying, a debuggee whose relays have been idle for its timeout has
// its socket shut down, which ends the relays. Once timing, a passed deadline
// forces the socket down again and the child's status is polled without
// blocking.
//
// The deadline is armed when the relays end, so after an idle shutdown the
// status is reported no earlier than twice the timeout after the last
// relayed byte.
func (d *Debuggee) Cleanup(now time.Time) (*os.ProcessState, error) {
	d.mu.Lock()
	c := d.comms
	if c == nil {
		d.mu.Unlock()
		return nil, nil
	}

	switch c.state {
	case relaying:
		idleSince := time.Unix(0, d.lastActivity.Load())
		expired := c.timeout > 0 && !c.idleShut && !now.Before(idleSince.Add(c.timeout))
		var err error
		if expired {
			c.idleShut = true
			err = d.forceShutdownLocked(c)
		}
		d.mu.Unlock()
		if expired {
			c.log.Info("session idle, shutting down socket", "timeout", c.timeout)
			d.emit(event.Event{Type: event.IdleTimeout}, c)
		}
		return nil, err

	case timing:
		if !c.deadline.IsZero() {
			if now.Before(c.deadline) {
				d.mu.Unlock()
				return nil, nil
			}
			if err := d.forceShutdownLocked(c); err != nil {
				d.mu.Unlock()
				return nil, err
			}
		}
	}
	d.mu.Unlock()

	return d.tryWait()
}

func (d *Debuggee) forceShutdownLocked(c *comms) error {
	err := platform.Shutdown(c.sock, unix.SHUT_RDWR)
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// tryWait returns the exit status if the child has exited, nil otherwise.
func (d *Debuggee) tryWait() (*os.ProcessState, error) {
	select {
	case <-d.exited:
		if d.waitErr != nil {
			return nil, d.waitErr
		}
		return d.state, nil
	default:
		return nil, nil
	}
}

// Close tears the debuggee down: the child is killed if it is still running,
// the socket is shut down and closed, and the child's descriptors are
// closed. Every removal path calls it; repeated calls are no-ops.
func (d *Debuggee) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	select {
	case <-d.exited:
	default:
		d.cmd.Process.Kill() //nolint:errcheck // best-effort; the process may have just exited
	}

	if c := d.comms; c != nil {
		platform.Shutdown(c.sock, unix.SHUT_RDWR) //nolint:errcheck // best-effort
		c.sock.Close()
	}
	d.closeStdioLocked()
}

func (d *Debuggee) emit(ev event.Event, c *comms) {
	if d.onEvent == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.PID = d.pid
	if c != nil {
		ev.Session = c.session
		ev.Remote = c.remote
	}
	ev.BytesIn = d.bytesIn.Load()
	ev.BytesOut = d.bytesOut.Load()
	d.onEvent(ev)
}
