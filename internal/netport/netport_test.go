package netport

import (
	"errors"
	"net"
	"strconv"
	"testing"
)

// reservePort grabs a free port and keeps it bound for the duration of the test.
func reservePort(t *testing.T) (int, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port, ln
}

func TestAllocate_ReturnsStartWhenFree(t *testing.T) {
	// Find a free port, release it, then ask Allocate for it.
	port, ln := reservePort(t)
	ln.Close()

	got, err := Allocate(port, 10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != port {
		t.Errorf("Allocate(%d) = %d, want %d", port, got, port)
	}
}

func TestAllocate_SkipsBusyPort(t *testing.T) {
	port, _ := reservePort(t)

	got, err := Allocate(port, 50)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got == port {
		t.Errorf("Allocate returned busy port %d", port)
	}
	if got <= port {
		t.Errorf("Allocate(%d) = %d, want a higher port", port, got)
	}

	// The returned port must actually be bindable.
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(got)))
	if err != nil {
		t.Fatalf("returned port %d not bindable: %v", got, err)
	}
	ln.Close()
}

func TestAllocate_BoundedProbing(t *testing.T) {
	port, _ := reservePort(t)

	_, err := Allocate(port, 1)
	if err == nil {
		t.Fatal("expected error when the only probed port is busy")
	}
	if !errors.Is(err, ErrNoFreePort) {
		t.Errorf("expected ErrNoFreePort, got %v", err)
	}
}

func TestAllocate_InvalidStart(t *testing.T) {
	for _, start := range []int{0, -1, 70000} {
		if _, err := Allocate(start, 10); err == nil {
			t.Errorf("Allocate(%d) expected error", start)
		}
	}
}

func TestAllocate_StopsAtPortCeiling(t *testing.T) {
	// Probing from 65535 must not run past the valid port range.
	got, err := Allocate(65535, 10)
	if err != nil {
		// 65535 busy on this machine; bounded failure is the correct outcome.
		if !errors.Is(err, ErrNoFreePort) {
			t.Errorf("expected ErrNoFreePort, got %v", err)
		}
		return
	}
	if got != 65535 {
		t.Errorf("Allocate(65535) = %d, want 65535", got)
	}
}
