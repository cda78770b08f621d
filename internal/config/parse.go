package config

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"os/user"
	"strconv"
	"time"
)

var ErrNegativeTimeout = errors.New("timeout must not be negative")

// ParseAddress parses the IPv4 or IPv6 address to listen on.
func ParseAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

// ParsePort parses a TCP port. 0 asks the kernel for a free one.
func ParsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(n), nil
}

// ParseUser resolves a numeric uid or a user name to a uid.
func ParseUser(s string) (uint32, error) {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil
	}

	u, err := user.Lookup(s)
	if err != nil {
		return 0, fmt.Errorf("invalid user %q: %w", s, err)
	}
	n, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("user %q has non-numeric uid %q", s, u.Uid)
	}
	return uint32(n), nil
}

// ParseTimeout converts an idle timeout in whole seconds. 0 means no
// timeout.
func ParseTimeout(secs int64) (time.Duration, error) {
	if secs < 0 {
		return 0, fmt.Errorf("timeout %d: %w", secs, ErrNegativeTimeout)
	}
	if secs > math.MaxInt64/int64(time.Second) {
		return 0, fmt.Errorf("timeout %d seconds is too large", secs)
	}
	return time.Duration(secs) * time.Second, nil
}
