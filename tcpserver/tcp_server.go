// Package tcpserver is the server side of the connection lifecycle engine: it
// binds a listening socket, accepts connections on a dedicated goroutine and
// runs one handling unit per connection.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/konnect/config"
	"github.com/cyberinferno/konnect/connection"
	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
	"github.com/cyberinferno/konnect/registry"
	"golang.org/x/sync/semaphore"
)

// acceptRetryDelay throttles the accept loop after a failed Accept.
const acceptRetryDelay = 10 * time.Millisecond

// Server accepts TCP connections and tracks the open ones in a registry keyed
// by connection id. Every connection gets its own goroutine, so a slow peer or
// observer only delays its own connection.
type Server struct {
	cfg      *config.Config
	log      logger.Logger
	emitter  *events.Emitter
	registry *registry.Registry[*connection.Handle]
	slots    *semaphore.Weighted

	mu         sync.Mutex
	listener   net.Listener
	stopped    bool
	running    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	acceptDone chan struct{}
	stopDone   chan struct{}
	units      sync.WaitGroup
}

// New creates a Server for cfg. No socket is opened until Start.
//
// Parameters:
//   - cfg: The immutable configuration built by config.Builder
//
// Returns:
//   - A new *Server
//   - An error if cfg is nil
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger().With(logger.Field{Key: "role", Value: "server"}),
		emitter:  cfg.Emitter(),
		registry: registry.New[*connection.Handle](cfg.IDQuarantine()),
		stopDone: make(chan struct{}),
	}

	if cfg.MaxConnections() > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConnections()))
	}

	return s, nil
}

// Start binds the listening socket and starts the accept loop on its own
// goroutine. A Server can be started once.
//
// Returns:
//   - A *BindError if the address is unavailable or invalid, ErrAlreadyRunning
//     or ErrServerStopped if the server was already started or stopped
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrServerStopped
	}

	if s.listener != nil {
		return ErrAlreadyRunning
	}

	s.log.Info("starting server", logger.Field{Key: "addr", Value: s.cfg.Address()})

	ln, err := s.cfg.Listen()("tcp", s.cfg.Address())
	if err != nil {
		s.log.Error("server failed to bind", logger.Field{Key: "error", Value: err.Error()})
		return &BindError{Addr: s.cfg.Address(), Err: err}
	}

	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.acceptDone = make(chan struct{})
	s.running.Store(true)

	s.log.Info("listening, accepting connections", logger.Field{Key: "addr", Value: ln.Addr().String()})
	go s.acceptLoop(ln)

	return nil
}

// Stop closes the listening socket and waits for the accept loop to exit.
// Under config.Drain open connections keep running until their peers
// disconnect; under config.CloseConnections they are closed and Stop waits for
// their Disconnected events. Stop is idempotent: later calls wait until the
// first one has finished. It must not be called from an observer hook when
// CloseConnections is configured.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.stopDone
		return nil
	}

	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	defer close(s.stopDone)

	if ln == nil {
		s.log.Info("server not running")
		return nil
	}

	s.running.Store(false)
	_ = ln.Close()
	<-s.acceptDone

	if s.cfg.StopPolicy() == config.CloseConnections {
		s.cancel()
		s.units.Wait()
	}

	s.log.Info("server stopped",
		logger.Field{Key: "policy", Value: s.cfg.StopPolicy().String()},
		logger.Field{Key: "open_connections", Value: s.registry.Len()},
	)

	return nil
}

// Wait blocks until every handling unit started so far has finished.
func (s *Server) Wait() {
	s.units.Wait()
}

// Running reports whether the accept loop is active.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Connection returns the open connection registered under id.
func (s *Server) Connection(id uint32) (*connection.Handle, bool) {
	return s.registry.Get(id)
}

// Connections returns the open connections ordered by id.
func (s *Server) Connections() []*connection.Handle {
	return s.registry.Snapshot()
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	return s.registry.Len()
}

// Send encodes v and writes it to the connection registered under id.
//
// Parameters:
//   - id: The connection id
//   - v: The value to send
//
// Returns:
//   - ErrUnknownConnection if id is not registered, otherwise the error from
//     connection.Handle.Send
func (s *Server) Send(id uint32, v any) error {
	h, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}

	return h.Send(v)
}

// Broadcast sends v to every open connection.
//
// Returns:
//   - The number of connections the value was written to
func (s *Server) Broadcast(v any) int {
	sent := 0
	s.registry.Range(func(id uint32, h *connection.Handle) bool {
		if err := h.Send(v); err != nil {
			s.log.Warn("broadcast send failed",
				logger.Field{Key: "conn_id", Value: id},
				logger.Field{Key: "error", Value: err.Error()},
			)
			return true
		}

		sent++
		return true
	})

	return sent
}

// acceptLoop accepts connections until the listener is closed. Each accepted
// connection is registered and handed to its own goroutine before the next
// Accept.
func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.log.Error("accept error", logger.Field{Key: "error", Value: err.Error()})
			time.Sleep(acceptRetryDelay)
			continue
		}

		if s.slots != nil && !s.slots.TryAcquire(1) {
			s.log.Warn("connection limit reached, rejecting",
				logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
				logger.Field{Key: "limit", Value: s.cfg.MaxConnections()},
			)
			_ = conn.Close()
			continue
		}

		connection.Tune(conn)
		id, h := s.registry.Insert(func(id uint32) *connection.Handle {
			return connection.New(id, conn, s.cfg.Codec(), s.log)
		})

		s.log.Info("accepted connection",
			logger.Field{Key: "conn_id", Value: id},
			logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
		)

		s.units.Add(1)
		go s.handle(h)
	}
}

// handle is the handling unit of one connection. Failures, including observer
// panics, end only this unit and always run the disconnect cleanup.
func (s *Server) handle(h *connection.Handle) {
	log := s.log.With(logger.Field{Key: "conn_id", Value: h.ID()})

	defer s.units.Done()
	defer s.disconnect(h, log)
	defer func() {
		if r := recover(); r != nil {
			log.Error("handling unit panic", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	s.emitter.Emit(events.NewConnected(h))

	if err := h.WriteGreeting("server"); err != nil {
		log.Warn("greeting failed", logger.Field{Key: "error", Value: err.Error()})
		return
	}

	if err := h.Serve(s.ctx, s.emitter); err != nil {
		log.Warn("connection ended with error", logger.Field{Key: "error", Value: err.Error()})
	}
}

// disconnect closes h, frees its connection slot, removes it from the registry
// and emits Disconnected.
func (s *Server) disconnect(h *connection.Handle, log logger.Logger) {
	_ = h.Close()
	s.releaseSlot()
	s.registry.Remove(h.ID())

	defer func() {
		if r := recover(); r != nil {
			log.Error("disconnect observer panic", logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
	}()

	log.Info("connection closed")
	s.emitter.Emit(events.NewDisconnected(h))
}

func (s *Server) releaseSlot() {
	if s.slots != nil {
		s.slots.Release(1)
	}
}
