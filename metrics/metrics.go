// Package metrics exports connection lifecycle counters to Prometheus. Its
// Observer is registered with config.Builder like any other observer.
package metrics

import (
	"github.com/cyberinferno/konnect/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Prometheus observer.
type Config struct {
	// Namespace is the metrics namespace (default: "konnect").
	Namespace string

	// Subsystem is the metrics subsystem, typically "server" or "client".
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry receives the collectors (default: prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

// Option configures the Prometheus observer.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Observer counts connections, disconnections and received units. It
// implements every events observer hook and is safe for concurrent use.
type Observer struct {
	connections    prometheus.Counter
	disconnections prometheus.Counter
	active         prometheus.Gauge
	units          prometheus.Counter
}

// NewObserver creates the collectors and registers them.
//
// Parameters:
//   - opts: Options overriding the defaults
//
// Returns:
//   - A new *Observer
//
// NewObserver panics if the collectors are already registered with the
// chosen registry.
func NewObserver(opts ...Option) *Observer {
	cfg := Config{
		Namespace: "konnect",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)
	return &Observer{
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connections_total",
			Help:        "Total connections established.",
			ConstLabels: cfg.ConstLabels,
		}),
		disconnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "disconnections_total",
			Help:        "Total connections terminated.",
			ConstLabels: cfg.ConstLabels,
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "active_connections",
			Help:        "Connections currently open.",
			ConstLabels: cfg.ConstLabels,
		}),
		units: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "data_units_total",
			Help:        "Total decoded data units received.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// OnConnected implements events.ConnectedObserver.
func (o *Observer) OnConnected(events.Peer) {
	o.connections.Inc()
	o.active.Inc()
}

// OnDisconnected implements events.DisconnectedObserver.
func (o *Observer) OnDisconnected(events.Peer) {
	o.disconnections.Inc()
	o.active.Dec()
}

// OnDataReceived implements events.DataObserver.
func (o *Observer) OnDataReceived(events.Peer, any) {
	o.units.Inc()
}
