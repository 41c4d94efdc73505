// Package tracing records one OpenTelemetry span per connection. The span is
// started on Connected, receives an event for every decoded unit and ends on
// Disconnected.
package tracing

import (
	"context"
	"fmt"
	"sync"

	"github.com/cyberinferno/konnect/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "konnect"

// SpanName is the name of every connection span.
const SpanName = "konnect.connection"

// Config configures the tracing observer.
type Config struct {
	// TracerName is used to resolve a tracer from the global provider.
	TracerName string

	// Tracer overrides the global provider when set.
	Tracer trace.Tracer

	// SpanKind is trace.SpanKindServer for servers and trace.SpanKindClient
	// for clients (default: server).
	SpanKind trace.SpanKind

	// RecordData adds a span event per decoded unit (default: true).
	RecordData bool
}

// Option configures the tracing observer.
type Option func(*Config)

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithTracer sets the tracer directly.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}

// WithSpanKind sets the span kind.
func WithSpanKind(kind trace.SpanKind) Option {
	return func(c *Config) {
		c.SpanKind = kind
	}
}

// WithRecordData enables or disables the per-unit span events.
func WithRecordData(record bool) Option {
	return func(c *Config) {
		c.RecordData = record
	}
}

// Observer keeps the open span of every connection keyed by session id.
type Observer struct {
	tracer     trace.Tracer
	kind       trace.SpanKind
	recordData bool

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewObserver creates a tracing observer.
//
// The tracer comes from the global OpenTelemetry provider unless WithTracer
// is given, so configure the provider in main() before building the engine.
func NewObserver(opts ...Option) *Observer {
	cfg := Config{
		TracerName: defaultTracerName,
		SpanKind:   trace.SpanKindServer,
		RecordData: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(cfg.TracerName)
	}

	return &Observer{
		tracer:     tracer,
		kind:       cfg.SpanKind,
		recordData: cfg.RecordData,
		spans:      make(map[string]trace.Span),
	}
}

// OnConnected implements events.ConnectedObserver.
func (o *Observer) OnConnected(peer events.Peer) {
	_, span := o.tracer.Start(context.Background(), SpanName,
		trace.WithSpanKind(o.kind),
		trace.WithAttributes(peerAttributes(peer)...),
	)

	o.mu.Lock()
	o.spans[peer.SessionID()] = span
	o.mu.Unlock()
}

// OnDataReceived implements events.DataObserver.
func (o *Observer) OnDataReceived(peer events.Peer, data any) {
	if !o.recordData {
		return
	}

	o.mu.Lock()
	span, ok := o.spans[peer.SessionID()]
	o.mu.Unlock()

	if ok {
		span.AddEvent("data", trace.WithAttributes(
			attribute.String("konnect.data_type", fmt.Sprintf("%T", data)),
		))
	}
}

// OnDisconnected implements events.DisconnectedObserver.
func (o *Observer) OnDisconnected(peer events.Peer) {
	o.mu.Lock()
	span, ok := o.spans[peer.SessionID()]
	delete(o.spans, peer.SessionID())
	o.mu.Unlock()

	if ok {
		span.End()
	}
}

// Open returns the number of spans not yet ended.
func (o *Observer) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}

func peerAttributes(peer events.Peer) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64("konnect.conn_id", int64(peer.ID())),
		attribute.String("konnect.session_id", peer.SessionID()),
	}

	if addr := peer.RemoteAddr(); addr != nil {
		attrs = append(attrs, attribute.String("net.peer.addr", addr.String()))
	}

	if addr := peer.LocalAddr(); addr != nil {
		attrs = append(attrs, attribute.String("net.host.addr", addr.String()))
	}

	return attrs
}
