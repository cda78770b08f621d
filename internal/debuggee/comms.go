package debuggee

import (
	"log/slog"
	"os"
	"time"
)

type commsState int

const (
	// relaying: both relay goroutines may still be moving bytes.
	relaying commsState = iota
	// timing: the socket is shut down and an optional deadline is armed.
	timing
)

func (s commsState) String() string {
	if s == relaying {
		return "relaying"
	}
	return "timing"
}

// comms is the communication record of an attached debuggee. Every field
// below sock is guarded by the owning Debuggee's mu.
type comms struct {
	sock    *os.File
	remote  string
	session string
	timeout time.Duration // 0 means no idle timeout
	log     *slog.Logger

	// Closed when the respective relay goroutine has returned.
	incoming chan struct{}
	outgoing chan struct{}

	state    commsState
	deadline time.Time // zero while relaying or when no timeout is set
	idleShut bool      // sweep already forced the socket down while relaying
}

// toTiming moves the record from relaying to timing and arms the deadline.
// It reports whether this call performed the transition; false means it had
// already happened, which concurrent callers must treat as a normal outcome.
func (c *comms) toTiming(now time.Time) bool {
	if c.state != relaying {
		return false
	}
	c.state = timing
	if c.timeout > 0 {
		c.deadline = now.Add(c.timeout)
	}
	return true
}

// sibling returns the done channel of the relay running in the other
// direction.
func (c *comms) sibling(dir direction) chan struct{} {
	if dir == incoming {
		return c.outgoing
	}
	return c.incoming
}
