// Package netport allocates free loopback TCP ports for the worker control
// endpoint.
package netport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// DefaultMaxProbes bounds how many consecutive ports Allocate will try before
// giving up.
const DefaultMaxProbes = 100

// ErrNoFreePort is returned when no free port is found within the probe bound.
var ErrNoFreePort = errors.New("netport: no free port found")

// Allocate returns the first free loopback port at or above start.
// It probes at most maxProbes consecutive ports (DefaultMaxProbes if
// maxProbes <= 0) and never probes beyond 65535.
func Allocate(start, maxProbes int) (int, error) {
	if start <= 0 || start > 65535 {
		return 0, fmt.Errorf("netport: invalid start port %d", start)
	}
	if maxProbes <= 0 {
		maxProbes = DefaultMaxProbes
	}

	for i := 0; i < maxProbes; i++ {
		port := start + i
		if port > 65535 {
			break
		}
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}

	return 0, fmt.Errorf("%w: probed %d ports starting at %d", ErrNoFreePort, maxProbes, start)
}
