package netutil

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrAddrInUse means another process is already serving on the address.
var ErrAddrInUse = errors.New("address already served by another process")

// Claim listens on addr. When something already accepts connections there
// it returns ErrAddrInUse so the caller can hand off to that instance.
func Claim(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}
	if IsListening(addr, 500*time.Millisecond) {
		return nil, fmt.Errorf("%w: %s", ErrAddrInUse, addr)
	}
	return nil, fmt.Errorf("listen %s: %w", addr, err)
}

// IsListening reports whether a TCP connection to addr succeeds within timeout.
func IsListening(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
