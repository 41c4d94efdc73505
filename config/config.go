// Package config assembles the immutable runtime configuration shared by the
// client and server engines.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cyberinferno/konnect/codec"
	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
)

// Defaults applied by NewBuilder.
const (
	DefaultHost             = "127.0.0.1"
	DefaultPort             = 54666
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// ErrInvalidConfig is wrapped by every validation error from Build and LoadFile.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// StopPolicy decides what a server does with open connections when it stops.
type StopPolicy int

const (
	// Drain leaves open connections running until their peers disconnect.
	Drain StopPolicy = iota
	// CloseConnections closes every open connection and waits for its handling
	// unit to finish.
	CloseConnections
)

// String returns the configuration-file name of the policy.
func (p StopPolicy) String() string {
	switch p {
	case Drain:
		return "drain"
	case CloseConnections:
		return "close"
	default:
		return "unknown"
	}
}

// ParseStopPolicy converts "drain" or "close" into a StopPolicy.
func ParseStopPolicy(s string) (StopPolicy, error) {
	switch s {
	case "drain", "":
		return Drain, nil
	case "close":
		return CloseConnections, nil
	default:
		return Drain, fmt.Errorf("%w: unknown stop policy %q", ErrInvalidConfig, s)
	}
}

// Dialer opens outbound connections. *net.Dialer satisfies it; tests inject
// fakes.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ListenFunc opens a listening socket. net.Listen satisfies it.
type ListenFunc func(network, address string) (net.Listener, error)

// Config is the immutable runtime configuration of an engine. It is created by
// Builder.Build and shared read-only by every goroutine the engine starts.
type Config struct {
	host             string
	port             int
	codec            codec.Codec
	loggingEnabled   bool
	logger           logger.Logger
	emitter          *events.Emitter
	connectTimeout   time.Duration
	handshakeTimeout time.Duration
	stopPolicy       StopPolicy
	maxConnections   int
	idQuarantine     time.Duration
	dialer           Dialer
	listen           ListenFunc
}

// Host returns the host to bind or dial.
func (c *Config) Host() string {
	return c.host
}

// Port returns the port to bind or dial; 0 binds an ephemeral port.
func (c *Config) Port() int {
	return c.port
}

// Codec returns the codec used on every connection.
func (c *Config) Codec() codec.Codec {
	return c.codec
}

// LoggingEnabled reports whether engine logging was enabled.
func (c *Config) LoggingEnabled() bool {
	return c.loggingEnabled
}

// Emitter returns the emitter holding the registered observers.
func (c *Config) Emitter() *events.Emitter {
	return c.emitter
}

// ConnectTimeout returns the client dial timeout; 0 means none.
func (c *Config) ConnectTimeout() time.Duration {
	return c.connectTimeout
}

// HandshakeTimeout returns how long the client waits for the server greeting.
func (c *Config) HandshakeTimeout() time.Duration {
	return c.handshakeTimeout
}

// StopPolicy returns what the server does with open connections on Stop.
func (c *Config) StopPolicy() StopPolicy {
	return c.stopPolicy
}

// MaxConnections returns the server connection limit; 0 means unlimited.
func (c *Config) MaxConnections() int {
	return c.maxConnections
}

// IDQuarantine returns how long a removed connection id is withheld from reuse.
func (c *Config) IDQuarantine() time.Duration {
	return c.idQuarantine
}

// Dialer returns the dialer the client opens connections with.
func (c *Config) Dialer() Dialer {
	return c.dialer
}

// Listen returns the function the server binds with.
func (c *Config) Listen() ListenFunc {
	return c.listen
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Logger returns the logger engines write to. It discards everything unless
// logging is enabled.
func (c *Config) Logger() logger.Logger {
	return c.logger
}
