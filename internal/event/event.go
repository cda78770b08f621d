package event

import (
	"os"
	"time"
)

// Type identifies the kind of lifecycle event.
type Type int

const (
	Spawned Type = iota + 1
	SpawnFailed
	Attached
	RelayClosed
	IdleTimeout
	Reaped
)

var typeNames = [...]string{
	Spawned:     "Spawned",
	SpawnFailed: "SpawnFailed",
	Attached:    "Attached",
	RelayClosed: "RelayClosed",
	IdleTimeout: "IdleTimeout",
	Reaped:      "Reaped",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return "Unknown"
}

// Event reports one step in a debuggee's life. RelayClosed is emitted from
// relay goroutines, so handlers must be safe for concurrent use.
type Event struct {
	Type      Type
	Timestamp time.Time
	PID       int
	Session   string // short session id, empty until attached
	Remote    string // peer address, empty until attached
	BytesIn   int64  // socket -> child stdin
	BytesOut  int64  // child stdout -> socket
	State     *os.ProcessState
	Error     error
}

// Handler receives events.
type Handler func(Event)

// Discard ignores every event.
func Discard(Event) {}
