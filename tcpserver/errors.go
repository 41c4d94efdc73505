package tcpserver

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start on a server that is listening.
	ErrAlreadyRunning = errors.New("tcpserver: already running")

	// ErrServerStopped is returned by Start after Stop; a server cannot restart.
	ErrServerStopped = errors.New("tcpserver: server stopped")

	// ErrUnknownConnection is returned by Send for an id that is not registered.
	ErrUnknownConnection = errors.New("tcpserver: unknown connection")
)

// BindError reports that the listening socket could not be opened. No accept
// loop is started when Start returns it.
type BindError struct {
	Addr string
	Err  error
}

// Error implements error.
func (e *BindError) Error() string {
	return fmt.Sprintf("tcpserver: bind %s: %v", e.Addr, e.Err)
}

// Unwrap returns the listen error.
func (e *BindError) Unwrap() error {
	return e.Err
}
