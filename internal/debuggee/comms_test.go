package debuggee

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToTimingArmsDeadline(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := &comms{timeout: 5 * time.Second, state: relaying}

	assert.True(t, c.toTiming(now))
	assert.Equal(t, timing, c.state)
	assert.Equal(t, now.Add(5*time.Second), c.deadline)
}

func TestToTimingWithoutTimeout(t *testing.T) {
	t.Parallel()

	c := &comms{state: relaying}

	assert.True(t, c.toTiming(time.Now()))
	assert.Equal(t, timing, c.state)
	assert.True(t, c.deadline.IsZero())
}

func TestToTimingIsIrreversible(t *testing.T) {
	t.Parallel()

	first := time.Now()
	c := &comms{timeout: time.Second, state: relaying}
	assert.True(t, c.toTiming(first))

	// A second attempt reports the transition already happened and leaves
	// the deadline alone.
	assert.False(t, c.toTiming(first.Add(time.Hour)))
	assert.Equal(t, timing, c.state)
	assert.Equal(t, first.Add(time.Second), c.deadline)
}

func TestToTimingExactlyOnceUnderContention(t *testing.T) {
	t.Parallel()

	const goroutines = 64

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		performed atomic.Int32
		start     = make(chan struct{})
	)
	c := &comms{timeout: time.Second, state: relaying}

	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			<-start
			mu.Lock()
			ok := c.toTiming(time.Now())
			mu.Unlock()
			if ok {
				performed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), performed.Load())
}

func TestSibling(t *testing.T) {
	t.Parallel()

	c := &comms{incoming: make(chan struct{}), outgoing: make(chan struct{})}
	assert.Equal(t, c.outgoing, c.sibling(incoming))
	assert.Equal(t, c.incoming, c.sibling(outgoing))
}

func TestStateAndDirectionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "relaying", relaying.String())
	assert.Equal(t, "timing", timing.String())
	assert.Equal(t, "incoming", incoming.String())
	assert.Equal(t, "outgoing", outgoing.String())
}
