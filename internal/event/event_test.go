package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "Spawned", typ: Spawned},
		{want: "SpawnFailed", typ: SpawnFailed},
		{want: "Attached", typ: Attached},
		{want: "RelayClosed", typ: RelayClosed},
		{want: "IdleTimeout", typ: IdleTimeout},
		{want: "Reaped", typ: Reaped},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Zero(t, e.PID)
	assert.Empty(t, e.Session)
	assert.Empty(t, e.Remote)
	assert.Zero(t, e.BytesIn)
	assert.Zero(t, e.BytesOut)
	assert.Nil(t, e.State)
	require.NoError(t, e.Error)
}

func TestEventFields(t *testing.T) {
	now := time.Now()
	e := Event{
		Type:      Attached,
		Timestamp: now,
		PID:       4242,
		Session:   "1a2b3c4d",
		Remote:    "127.0.0.1:50000",
	}
	assert.Equal(t, Attached, e.Type)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, 4242, e.PID)
	assert.Equal(t, "1a2b3c4d", e.Session)
	assert.Equal(t, "127.0.0.1:50000", e.Remote)
}

func TestDiscard(t *testing.T) {
	var h Handler = Discard
	assert.NotPanics(t, func() { h(Event{Type: Reaped}) })
}
