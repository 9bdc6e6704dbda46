// Package ports handles listen-port negotiation for the delivery server.
//
// Probing works by transiently binding the candidate port: a bind that fails
// with EADDRINUSE means the port is taken, a bind that succeeds is released
// immediately. Probes never hold the port; the caller binds the winner itself
// through the normal listen path.
package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// MaxFallbackAttempts caps the sequential fallback scan. With fallback
// enabled, ports defaultPort..defaultPort+MaxFallbackAttempts-1 are probed in
// order and the first free one wins.
const MaxFallbackAttempts = 20

var (
	// ErrPortInUse is returned when the requested port is occupied and
	// fallback is disabled.
	ErrPortInUse = errors.New("port already in use")

	// ErrFallbackExhausted is returned when every candidate port in the
	// fallback range is occupied.
	ErrFallbackExhausted = errors.New("maximum port fallback attempts reached")
)

// IsPortInUse reports whether host:port is already bound by another process.
// It never holds the port. Bind failures other than "address in use" are
// unexpected OS/network conditions and are propagated, not treated as in use.
func IsPortInUse(host string, port int) (bool, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if addrInUse(err) {
			return true, nil
		}
		return false, err
	}
	if cerr := ln.Close(); cerr != nil {
		return false, fmt.Errorf("releasing probe listener on port %d: %w", port, cerr)
	}
	return false, nil
}

// FindAvailable negotiates the listen port. Without fallback only defaultPort
// is probed and ErrPortInUse is returned if it is occupied. With fallback the
// scan is sequential, not parallel, so the first free port deterministically
// wins; ErrFallbackExhausted is returned once the attempt ceiling is hit.
func FindAvailable(host string, defaultPort int, fallback bool) (int, error) {
	if !fallback {
		inUse, err := IsPortInUse(host, defaultPort)
		if err != nil {
			return 0, fmt.Errorf("probing port %d: %w", defaultPort, err)
		}
		if inUse {
			return 0, fmt.Errorf("port %d: %w", defaultPort, ErrPortInUse)
		}
		return defaultPort, nil
	}

	for attempt := 0; attempt < MaxFallbackAttempts; attempt++ {
		candidate := defaultPort + attempt
		inUse, err := IsPortInUse(host, candidate)
		if err != nil {
			return 0, fmt.Errorf("probing port %d: %w", candidate, err)
		}
		if !inUse {
			return candidate, nil
		}
	}

	return 0, fmt.Errorf("ports %d-%d all occupied: %w",
		defaultPort, defaultPort+MaxFallbackAttempts-1, ErrFallbackExhausted)
}
