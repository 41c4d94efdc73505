// Package tcpclient is the client side of the connection lifecycle engine: it
// owns exactly one outbound connection and reports its lifecycle and inbound
// data through the configured observers. A client is single use; once Closed it
// cannot be restarted.
package tcpclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyberinferno/konnect/config"
	"github.com/cyberinferno/konnect/connection"
	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
)

// clientConnID is the id of the client's only connection.
const clientConnID = 1

// ConnectionState is the lifecycle state of a Client.
type ConnectionState int

const (
	Idle       ConnectionState = iota // Constructed, Start not called
	Connecting                        // Dial or handshake in progress
	Connected                         // Read loop running
	Closing                           // Stop in progress
	Closed                            // Terminal
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Client is a TCP client driven by lifecycle events. It is safe for
// concurrent use.
type Client struct {
	cfg     *config.Config
	log     logger.Logger
	emitter *events.Emitter

	mu         sync.RWMutex
	state      ConnectionState
	handle     *connection.Handle
	cancel     context.CancelFunc
	dialCancel context.CancelFunc
	dialDone   chan struct{}
	wg         sync.WaitGroup
}

// New creates an Idle client for cfg. No socket is opened until Start.
//
// Parameters:
//   - cfg: The immutable configuration built by config.Builder
//
// Returns:
//   - A new *Client
//   - An error if cfg is nil
func New(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}

	return &Client{
		cfg:     cfg,
		log:     cfg.Logger().With(logger.Field{Key: "role", Value: "client"}),
		emitter: cfg.Emitter(),
		state:   Idle,
	}, nil
}

// Start dials the configured address, exchanges greetings and starts the read
// loop. Connected is emitted from the read loop goroutine.
//
// Returns:
//   - nil on success
//   - A *ConnectionError if the dial or handshake fails; the client is then Closed
//   - ErrAlreadyStarted or ErrClientClosed if the client is not Idle
func (c *Client) Start() error {
	c.mu.Lock()
	switch c.state {
	case Idle:
	case Closing, Closed:
		c.mu.Unlock()
		return ErrClientClosed
	default:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	dialCtx, dialCancel := context.WithCancel(context.Background())
	dialDone := make(chan struct{})
	c.state = Connecting
	c.dialCancel = dialCancel
	c.dialDone = dialDone
	c.mu.Unlock()

	defer close(dialDone)
	defer dialCancel()

	addr := c.cfg.Address()
	c.log.Info("connecting", logger.Field{Key: "addr", Value: addr})

	h, err := c.dial(dialCtx, addr)
	if err != nil {
		c.setState(Closed)
		c.log.Error("connection failed", logger.Field{Key: "error", Value: err.Error()})
		return err
	}

	c.mu.Lock()
	if c.state != Connecting {
		c.state = Closed
		c.mu.Unlock()
		_ = h.Close()
		return ErrClientClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.handle = h
	c.cancel = cancel
	c.state = Connected
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info("connected to server",
		logger.Field{Key: "remote", Value: h.RemoteAddr().String()},
		logger.Field{Key: "greeting", Value: h.PeerGreeting()},
	)

	go c.readLoop(ctx, cancel, h)
	return nil
}

// dial opens the socket and performs the greeting exchange. Cancelling ctx
// aborts either step.
func (c *Client) dial(ctx context.Context, addr string) (*connection.Handle, error) {
	dialCtx := ctx
	if timeout := c.cfg.ConnectTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := c.cfg.Dialer().DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Op: "dial", Err: err}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	connection.Tune(conn)
	h := connection.New(clientConnID, conn, c.cfg.Codec(), c.log)

	if err := h.WriteGreeting("client"); err != nil {
		_ = h.Close()
		return nil, &ConnectionError{Addr: addr, Op: "handshake", Err: err}
	}

	if _, err := h.ReadGreeting(c.cfg.HandshakeTimeout()); err != nil {
		_ = h.Close()
		return nil, &ConnectionError{Addr: addr, Op: "handshake", Err: err}
	}

	return h, nil
}

// readLoop emits Connected, serves the connection and, whatever ends it, moves
// to Closed and emits Disconnected exactly once.
func (c *Client) readLoop(ctx context.Context, cancel context.CancelFunc, h *connection.Handle) {
	defer c.wg.Done()
	defer cancel()
	defer c.disconnect(h)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("read loop panic", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	c.emitter.Emit(events.NewConnected(h))

	if err := h.Serve(ctx, c.emitter); err != nil {
		c.log.Warn("connection ended with error", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (c *Client) disconnect(h *connection.Handle) {
	_ = h.Close()
	c.setState(Closed)

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("disconnect observer panic", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	c.log.Info("disconnected", logger.Field{Key: "remote", Value: h.RemoteAddr().String()})
	c.emitter.Emit(events.NewDisconnected(h))
}

// Stop closes the connection and waits for the read loop to finish. After Stop
// returns no further events are emitted and the client is Closed. Stop is
// idempotent: a call that overlaps another waits for it to finish. It must not
// be called from an observer hook of the same client.
func (c *Client) Stop() error {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.state = Closed
		c.mu.Unlock()
		return nil
	case Connecting:
		c.state = Closing
		dialCancel, dialDone := c.dialCancel, c.dialDone
		c.mu.Unlock()

		dialCancel()
		<-dialDone
		return nil
	case Connected:
		c.state = Closing
	case Closing:
		dialDone := c.dialDone
		c.mu.Unlock()

		if dialDone != nil {
			<-dialDone
		}

		c.wg.Wait()
		return nil
	}

	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.wg.Wait()
	c.log.Info("client stopped")
	return nil
}

// Send encodes v and writes it to the server.
//
// Parameters:
//   - v: The value to send
//
// Returns:
//   - ErrNotConnected if the client is not Connected, otherwise the error from
//     connection.Handle.Send
func (c *Client) Send(v any) error {
	c.mu.RLock()
	h := c.handle
	state := c.state
	c.mu.RUnlock()

	if state != Connected || h == nil {
		return ErrNotConnected
	}

	return h.Send(v)
}

// State returns the current lifecycle state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is Connected.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Handle returns the connection handle, or nil before a successful Start.
func (c *Client) Handle() *connection.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// PeerGreeting returns the server's greeting line, or "" before a successful
// Start.
func (c *Client) PeerGreeting() string {
	if h := c.Handle(); h != nil {
		return h.PeerGreeting()
	}

	return ""
}

func (c *Client) setState(state ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}
