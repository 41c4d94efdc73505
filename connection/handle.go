// Package connection holds the handle that represents one live socket and the
// read/decode/emit loop shared by the client and server engines.
package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/konnect/codec"
	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
	"github.com/google/uuid"
)

// MaxGreetingSize bounds the handshake line read from a peer.
const MaxGreetingSize = 1024

// ErrClosed is returned by Send once the handle has been closed.
var ErrClosed = errors.New("connection: closed")

// State is the open/closed state of a Handle.
type State int32

const (
	Open   State = iota // Socket usable
	Closed              // Socket released; terminal
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IOError is a steady-state read or write failure on a connection.
type IOError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *IOError) Error() string {
	return fmt.Sprintf("connection: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Handle represents one live socket. It is owned by the engine that created it
// and implements events.Peer. Send is safe for concurrent use.
type Handle struct {
	id        uint32
	sessionID string
	conn      net.Conn
	reader    *bufio.Reader
	codec     codec.Codec
	log       logger.Logger

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once

	greetMu      sync.RWMutex
	greeted      bool
	peerGreeting string
}

// New wraps conn in a Handle.
//
// Parameters:
//   - id: The identifier assigned by the owning engine
//   - conn: The connected socket
//   - c: Codec used for Send and Serve
//   - log: Logger for this connection; nil discards
//
// Returns:
//   - A new open *Handle
func New(id uint32, conn net.Conn, c codec.Codec, log logger.Logger) *Handle {
	if log == nil {
		log = logger.NewNopLogger()
	}

	sessionID := uuid.NewString()
	return &Handle{
		id:        id,
		sessionID: sessionID,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		codec:     c,
		log: log.With(
			logger.Field{Key: "conn_id", Value: id},
			logger.Field{Key: "session", Value: sessionID},
			logger.Field{Key: "remote", Value: addrString(conn.RemoteAddr())},
		),
	}
}

// ID returns the identifier assigned by the owning engine.
func (h *Handle) ID() uint32 {
	return h.id
}

// SessionID returns the random UUID that tags this connection's log lines.
func (h *Handle) SessionID() string {
	return h.sessionID
}

// RemoteAddr returns the peer's address.
func (h *Handle) RemoteAddr() net.Addr {
	return h.conn.RemoteAddr()
}

// LocalAddr returns the local end of the socket.
func (h *Handle) LocalAddr() net.Addr {
	return h.conn.LocalAddr()
}

// State reports whether the handle is still open.
func (h *Handle) State() State {
	if h.closed.Load() {
		return Closed
	}

	return Open
}

// PeerGreeting returns the handshake line received from the peer, or "" if it
// has not been read yet.
func (h *Handle) PeerGreeting() string {
	h.greetMu.RLock()
	defer h.greetMu.RUnlock()
	return h.peerGreeting
}

func (h *Handle) hasGreeting() bool {
	h.greetMu.RLock()
	defer h.greetMu.RUnlock()
	return h.greeted
}

// WriteGreeting writes the handshake line "Hello from <role> <local address>".
//
// Parameters:
//   - role: "server" or "client"
//
// Returns:
//   - An *IOError if the write fails
func (h *Handle) WriteGreeting(role string) error {
	line := fmt.Sprintf("Hello from %s %s", role, addrString(h.LocalAddr()))

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := (codec.LineFramer{}).WriteFrame(h.conn, []byte(line)); err != nil {
		return &IOError{Op: "write greeting", Err: err}
	}

	return nil
}

// ReadGreeting reads the peer's handshake line. A positive timeout bounds the
// read; the deadline is cleared afterwards.
//
// Parameters:
//   - timeout: Maximum time to wait; 0 waits indefinitely
//
// Returns:
//   - The greeting line
//   - An *IOError if the line could not be read in time
func (h *Handle) ReadGreeting(timeout time.Duration) (string, error) {
	if timeout > 0 {
		if err := h.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", &IOError{Op: "read greeting", Err: err}
		}

		defer func() {
			_ = h.conn.SetReadDeadline(time.Time{})
		}()
	}

	line, err := (codec.LineFramer{MaxSize: MaxGreetingSize}).ReadFrame(h.reader)
	if err != nil {
		return "", &IOError{Op: "read greeting", Err: err}
	}

	greeting := string(line)
	h.greetMu.Lock()
	h.greeted = true
	h.peerGreeting = greeting
	h.greetMu.Unlock()

	h.log.Debug("peer greeting received", logger.Field{Key: "greeting", Value: greeting})
	return greeting, nil
}

// Send encodes v with the handle's codec and writes one framed unit.
//
// Parameters:
//   - v: The value to send
//
// Returns:
//   - ErrClosed if the handle is closed, a *codec.CodecError if v cannot be
//     encoded, or an *IOError if the write fails
func (h *Handle) Send(v any) error {
	if h.closed.Load() {
		return ErrClosed
	}

	payload, err := h.codec.Encode(v)
	if err != nil {
		return err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.codec.WriteFrame(h.conn, payload); err != nil {
		var codecErr *codec.CodecError
		if errors.As(err, &codecErr) {
			return err
		}

		return &IOError{Op: "write", Err: err}
	}

	return nil
}

// Close releases the socket. A read blocked in Serve returns promptly. Only the
// first call closes; later calls return nil.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		err = h.conn.Close()
	})

	return err
}

// Serve runs the read loop until the stream ends, ctx is cancelled or an
// observer panics. If the peer greeting has not been read yet, the first line
// is consumed as the greeting. Every decoded unit is emitted as DataReceived in
// stream order; units the codec rejects are logged and dropped.
//
// Serve does not emit Connected or Disconnected; the owning engine does.
//
// Parameters:
//   - ctx: Cancelling ctx closes the handle and ends the loop
//   - emitter: Receives DataReceived events
//
// Returns:
//   - nil when the peer closed the stream or the handle was closed locally,
//     otherwise the *IOError or panic that ended the loop
func (h *Handle) Serve(ctx context.Context, emitter *events.Emitter) (err error) {
	stop := context.AfterFunc(ctx, func() {
		_ = h.Close()
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connection %d: observer panic: %v", h.id, r)
		}
	}()

	if !h.hasGreeting() {
		if _, err := h.ReadGreeting(0); err != nil {
			return h.endOfStream(err)
		}
	}

	for {
		frame, err := h.codec.ReadFrame(h.reader)
		if err != nil {
			return h.endOfStream(&IOError{Op: "read", Err: err})
		}

		value, err := h.codec.Decode(frame)
		if err != nil {
			h.log.Warn("dropping undecodable unit",
				logger.Field{Key: "error", Value: err.Error()},
				logger.Field{Key: "size", Value: len(frame)},
			)
			continue
		}

		h.log.Debug("received", logger.Field{Key: "value", Value: value})
		emitter.Emit(events.NewDataReceived(h, value))
	}
}

// endOfStream maps a read failure to Serve's result: a clean end of stream or a
// local close is not an error.
func (h *Handle) endOfStream(err error) error {
	if h.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Tune enables TCP no-delay and keep-alive on TCP connections; other
// connections are left untouched.
func Tune(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	return addr.String()
}
