package server

import (
	"math"

	"golang.org/x/time/rate"
)

// NewAcceptLimiter returns a limiter admitting perSec connections per
// second, or nil for no limit. The burst lets a short run of connections
// through at once; at rates below one per second it is 1.
func NewAcceptLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	burst := int(math.Ceil(perSec))
	return rate.NewLimiter(rate.Limit(perSec), burst)
}
