// Package pidfile publishes the PID of the spooled child through a sealed
// in-memory file, so a debugger can find the process that the next
// connection will be handed to before connecting.
package pidfile

import "errors"

const (
	// Name is the memfd name, visible in /proc/<pid>/fd as "/memfd:<Name>".
	Name = "dnetd_nextpid"
	// Size fits any PID plus the trailing newline.
	Size = 12
)

var ErrClosed = errors.New("pidfile closed")
