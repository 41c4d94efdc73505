package tcpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start while connecting or connected.
	ErrAlreadyStarted = errors.New("tcpclient: already started")

	// ErrClientClosed is returned by Start once the client is closing or closed.
	ErrClientClosed = errors.New("tcpclient: client is closed")

	// ErrNotConnected is returned by Send unless the client is Connected.
	ErrNotConnected = errors.New("tcpclient: not connected")
)

// ConnectionError reports a failed dial or handshake. The client is Closed
// when Start returns it.
type ConnectionError struct {
	Addr string
	Op   string
	Err  error
}

// Error implements error.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tcpclient: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the dial or handshake error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}
