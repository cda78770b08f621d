package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/dnetd/internal/event"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddProcessesSpawned(1)
				c.AddSessionsAccepted(1)
				c.AddRelaysClosed(1)
				c.AddIdleTimeouts(1)
				c.AddProcessesReaped(1)
				c.AddBytesIn(256)
				c.AddBytesOut(128)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.ProcessesSpawned)
	assert.Equal(t, expected, s.SessionsAccepted)
	assert.Equal(t, expected, s.RelaysClosed)
	assert.Equal(t, expected, s.IdleTimeouts)
	assert.Equal(t, expected, s.ProcessesReaped)
	assert.Equal(t, expected*256, s.BytesIn)
	assert.Equal(t, expected*128, s.BytesOut)
	assert.Zero(t, s.Active())
}

func TestObserve(t *testing.T) {
	c := NewCollector()

	c.Observe(event.Event{Type: event.Spawned})
	c.Observe(event.Event{Type: event.Spawned})
	c.Observe(event.Event{Type: event.SpawnFailed})
	c.Observe(event.Event{Type: event.Attached})
	c.Observe(event.Event{Type: event.Attached})
	c.Observe(event.Event{Type: event.RelayClosed})
	c.Observe(event.Event{Type: event.IdleTimeout})
	c.Observe(event.Event{Type: event.Reaped, BytesIn: 10, BytesOut: 20})
	c.Observe(event.Event{Type: event.Type(99)})

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.ProcessesSpawned)
	assert.Equal(t, int64(1), s.SpawnFailures)
	assert.Equal(t, int64(2), s.SessionsAccepted)
	assert.Equal(t, int64(1), s.RelaysClosed)
	assert.Equal(t, int64(1), s.IdleTimeouts)
	assert.Equal(t, int64(1), s.ProcessesReaped)
	assert.Equal(t, int64(10), s.BytesIn)
	assert.Equal(t, int64(20), s.BytesOut)
	assert.Equal(t, int64(1), s.Active())
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		ProcessesSpawned: 10,
		SessionsAccepted: 9,
		ProcessesReaped:  7,
		IdleTimeouts:     2,
		BytesIn:          512,
		BytesOut:         4096,
	}
	expected := "spawned=10 accepted=9 active=2 reaped=7 timeouts=2 in=512 B out=4.0 KiB"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}
