package config

import (
	"fmt"
	"net"
	"time"

	"github.com/cyberinferno/konnect/codec"
	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
	"github.com/rs/zerolog"
)

// Builder collects settings for a Config. Setters return the builder for
// chaining; Build validates and freezes the result.
type Builder struct {
	host             string
	port             int
	codec            codec.Codec
	loggingEnabled   bool
	logger           logger.Logger
	observers        []events.Observer
	connectTimeout   time.Duration
	handshakeTimeout time.Duration
	stopPolicy       StopPolicy
	maxConnections   int
	idQuarantine     time.Duration
	dialer           Dialer
	listen           ListenFunc
}

// NewBuilder starts a configuration for host with every other setting at its
// default: port 54666, the bytes codec, logging off, no observers.
//
// Parameters:
//   - host: Host to connect to (client) or bind to (server)
//
// Returns:
//   - A new *Builder
func NewBuilder(host string) *Builder {
	return &Builder{
		host:             host,
		port:             DefaultPort,
		codec:            codec.Bytes(),
		connectTimeout:   DefaultConnectTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
}

// Host replaces the host given to NewBuilder.
func (b *Builder) Host(host string) *Builder {
	b.host = host
	return b
}

// Port sets the TCP port. 0 lets a server pick an ephemeral port.
func (b *Builder) Port(port int) *Builder {
	b.port = port
	return b
}

// Codec replaces the default bytes codec.
func (b *Builder) Codec(c codec.Codec) *Builder {
	b.codec = c
	return b
}

// EnableLogging turns on diagnostic logging.
func (b *Builder) EnableLogging() *Builder {
	return b.Logging(true)
}

// Logging turns diagnostic logging on or off.
func (b *Builder) Logging(enabled bool) *Builder {
	b.loggingEnabled = enabled
	return b
}

// Logger sets the logger used when logging is enabled. Without it a console
// logger at debug level is used.
func (b *Builder) Logger(l logger.Logger) *Builder {
	b.logger = l
	return b
}

// RegisterObserver appends observers in order. Registering the same observer
// twice makes it receive every event twice.
func (b *Builder) RegisterObserver(observers ...events.Observer) *Builder {
	b.observers = append(b.observers, observers...)
	return b
}

// ConnectTimeout bounds the client dial.
func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	b.connectTimeout = d
	return b
}

// HandshakeTimeout bounds how long the client waits for the server greeting.
func (b *Builder) HandshakeTimeout(d time.Duration) *Builder {
	b.handshakeTimeout = d
	return b
}

// StopPolicy sets what a server does with open connections on Stop.
func (b *Builder) StopPolicy(p StopPolicy) *Builder {
	b.stopPolicy = p
	return b
}

// MaxConnections caps concurrently open server connections; 0 means no cap.
func (b *Builder) MaxConnections(n int) *Builder {
	b.maxConnections = n
	return b
}

// IDQuarantine sets how long a server withholds a released connection id.
func (b *Builder) IDQuarantine(d time.Duration) *Builder {
	b.idQuarantine = d
	return b
}

// Dialer replaces the client's TCP dialer.
func (b *Builder) Dialer(d Dialer) *Builder {
	b.dialer = d
	return b
}

// Listen replaces the server's listen function.
func (b *Builder) Listen(f ListenFunc) *Builder {
	b.listen = f
	return b
}

// Build validates the settings and returns the immutable Config. No sockets
// are opened.
//
// Returns:
//   - The Config
//   - An error wrapping ErrInvalidConfig if a setting is invalid
func (b *Builder) Build() (*Config, error) {
	switch {
	case b.host == "":
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case b.port < 0 || b.port > 65535:
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, b.port)
	case b.codec == nil:
		return nil, fmt.Errorf("%w: codec is required", ErrInvalidConfig)
	case b.connectTimeout < 0 || b.handshakeTimeout < 0:
		return nil, fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case b.maxConnections < 0:
		return nil, fmt.Errorf("%w: max connections must not be negative", ErrInvalidConfig)
	case b.stopPolicy != Drain && b.stopPolicy != CloseConnections:
		return nil, fmt.Errorf("%w: unknown stop policy %d", ErrInvalidConfig, b.stopPolicy)
	}

	log := logger.NewNopLogger()
	if b.loggingEnabled {
		log = b.logger
		if log == nil {
			log = logger.NewConsoleLogger(nil, "konnect", zerolog.DebugLevel)
		}
	}

	dialer := b.dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	listen := b.listen
	if listen == nil {
		listen = net.Listen
	}

	return &Config{
		host:             b.host,
		port:             b.port,
		codec:            b.codec,
		loggingEnabled:   b.loggingEnabled,
		logger:           log,
		emitter:          events.NewEmitter(b.observers...),
		connectTimeout:   b.connectTimeout,
		handshakeTimeout: b.handshakeTimeout,
		stopPolicy:       b.stopPolicy,
		maxConnections:   b.maxConnections,
		idQuarantine:     b.idQuarantine,
		dialer:           dialer,
		listen:           listen,
	}, nil
}
