// Package relay republishes connection lifecycle events on Redis pub/sub so
// that processes other than the engine's owner can follow them.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "konnect:events"

// DefaultPublishTimeout bounds every publish call.
const DefaultPublishTimeout = time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher is the subset of *redis.Client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Envelope is the JSON document published for every event.
type Envelope struct {
	Type      string    `json:"type"`
	ConnID    uint32    `json:"conn_id"`
	Session   string    `json:"session"`
	Remote    string    `json:"remote,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures an Observer.
type Option func(*Observer)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(o *Observer) {
		o.channel = channel
	}
}

// WithTimeout sets the per-publish timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Observer) {
		o.timeout = d
	}
}

// WithLogger sets the logger publish failures are reported to.
func WithLogger(l logger.Logger) Option {
	return func(o *Observer) {
		o.log = l
	}
}

// WithData enables or disables publishing DataReceived events.
func WithData(enabled bool) Option {
	return func(o *Observer) {
		o.data = enabled
	}
}

// Observer publishes an Envelope per event. Publish failures are logged and
// never reach the engine.
type Observer struct {
	client  Publisher
	channel string
	timeout time.Duration
	data    bool
	log     logger.Logger
}

// NewObserver creates a relay observer.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	builder.RegisterObserver(relay.NewObserver(client))
func NewObserver(client Publisher, opts ...Option) *Observer {
	o := &Observer{
		client:  client,
		channel: DefaultChannel,
		timeout: DefaultPublishTimeout,
		data:    true,
		log:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// OnConnected implements events.ConnectedObserver.
func (o *Observer) OnConnected(peer events.Peer) {
	o.publish(events.NewConnected(peer))
}

// OnDisconnected implements events.DisconnectedObserver.
func (o *Observer) OnDisconnected(peer events.Peer) {
	o.publish(events.NewDisconnected(peer))
}

// OnDataReceived implements events.DataObserver.
func (o *Observer) OnDataReceived(peer events.Peer, data any) {
	if o.data {
		o.publish(events.NewDataReceived(peer, data))
	}
}

func (o *Observer) publish(e events.Event) {
	payload, err := json.Marshal(envelope(e))
	if err != nil {
		o.log.Warn("relay encode failed",
			logger.Field{Key: "event", Value: e.Type.String()},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := o.client.Publish(ctx, o.channel, payload).Err(); err != nil {
		o.log.Warn("relay publish failed",
			logger.Field{Key: "channel", Value: o.channel},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
}

func envelope(e events.Event) Envelope {
	env := Envelope{
		Type:      e.Type.String(),
		ConnID:    e.Peer.ID(),
		Session:   e.Peer.SessionID(),
		Timestamp: e.Timestamp,
	}

	if addr := e.Peer.RemoteAddr(); addr != nil {
		env.Remote = addr.String()
	}

	if e.Type == events.DataReceived {
		env.Data = e.Data
	}

	return env
}

// Decode parses a published message back into an Envelope. Data holds the
// generic JSON form of the original value.
func Decode(message string) (Envelope, error) {
	var env Envelope
	if err := json.UnmarshalFromString(message, &env); err != nil {
		return Envelope{}, fmt.Errorf("relay: decode envelope: %w", err)
	}

	return env, nil
}
