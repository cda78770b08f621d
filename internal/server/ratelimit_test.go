package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewAcceptLimiter(t *testing.T) {
	t.Parallel()

	t.Run("disabled at zero", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, NewAcceptLimiter(0))
		assert.Nil(t, NewAcceptLimiter(-1))
	})

	t.Run("burst of one below one per second", func(t *testing.T) {
		t.Parallel()
		lim := NewAcceptLimiter(0.5)
		require.NotNil(t, lim)
		assert.Equal(t, 1, lim.Burst())
		assert.Equal(t, rate.Limit(0.5), lim.Limit())
	})

	t.Run("burst rounds rate up", func(t *testing.T) {
		t.Parallel()
		lim := NewAcceptLimiter(2.5)
		require.NotNil(t, lim)
		assert.Equal(t, 3, lim.Burst())
	})
}
