package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bamsammich/dnetd/internal/event"
)

// Collector tracks daemon statistics using lock-free atomic counters.
type Collector struct {
	processesSpawned atomic.Int64
	spawnFailures    atomic.Int64
	sessionsAccepted atomic.Int64
	relaysClosed     atomic.Int64
	idleTimeouts     atomic.Int64
	processesReaped  atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	startTime        time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ProcessesSpawned int64
	SpawnFailures    int64
	SessionsAccepted int64
	RelaysClosed     int64
	IdleTimeouts     int64
	ProcessesReaped  int64
	BytesIn          int64
	BytesOut         int64
	Elapsed          time.Duration
}

func (c *Collector) AddProcessesSpawned(n int64) { c.processesSpawned.Add(n) }
func (c *Collector) AddSpawnFailures(n int64)    { c.spawnFailures.Add(n) }
func (c *Collector) AddSessionsAccepted(n int64) { c.sessionsAccepted.Add(n) }
func (c *Collector) AddRelaysClosed(n int64)     { c.relaysClosed.Add(n) }
func (c *Collector) AddIdleTimeouts(n int64)     { c.idleTimeouts.Add(n) }
func (c *Collector) AddProcessesReaped(n int64)  { c.processesReaped.Add(n) }
func (c *Collector) AddBytesIn(n int64)          { c.bytesIn.Add(n) }
func (c *Collector) AddBytesOut(n int64)         { c.bytesOut.Add(n) }

// Observe updates counters from a lifecycle event. Byte totals are taken from
// Reaped events, which carry the final per-session counts.
func (c *Collector) Observe(ev event.Event) {
	switch ev.Type {
	case event.Spawned:
		c.AddProcessesSpawned(1)
	case event.SpawnFailed:
		c.AddSpawnFailures(1)
	case event.Attached:
		c.AddSessionsAccepted(1)
	case event.RelayClosed:
		c.AddRelaysClosed(1)
	case event.IdleTimeout:
		c.AddIdleTimeouts(1)
	case event.Reaped:
		c.AddProcessesReaped(1)
		c.AddBytesIn(ev.BytesIn)
		c.AddBytesOut(ev.BytesOut)
	}
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ProcessesSpawned: c.processesSpawned.Load(),
		SpawnFailures:    c.spawnFailures.Load(),
		SessionsAccepted: c.sessionsAccepted.Load(),
		RelaysClosed:     c.relaysClosed.Load(),
		IdleTimeouts:     c.idleTimeouts.Load(),
		ProcessesReaped:  c.processesReaped.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		Elapsed:          c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Active is the number of accepted sessions not yet reaped.
func (s Snapshot) Active() int64 {
	return s.SessionsAccepted - s.ProcessesReaped
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"spawned=%d accepted=%d active=%d reaped=%d timeouts=%d in=%s out=%s",
		s.ProcessesSpawned, s.SessionsAccepted, s.Active(), s.ProcessesReaped,
		s.IdleTimeouts, FormatBytes(s.BytesIn), FormatBytes(s.BytesOut),
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
