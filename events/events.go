// Package events defines the lifecycle notifications produced by the connection
// engines and the emitter that fans them out to registered observers.
package events

import (
	"net"
	"time"
)

// EventType tags an Event.
type EventType int

const (
	Connected    EventType = iota // A connection was established
	Disconnected                  // A connection terminated
	DataReceived                  // A unit was decoded from a connection
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case DataReceived:
		return "DataReceived"
	default:
		return "Unknown"
	}
}

// Peer is the read-only view of a connection that events carry.
type Peer interface {
	ID() uint32
	SessionID() string
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
}

// Event is a single lifecycle notification. Data is only set for DataReceived.
type Event struct {
	Type      EventType
	Peer      Peer
	Data      any
	Timestamp time.Time
}

// NewConnected builds a Connected event for peer.
func NewConnected(peer Peer) Event {
	return Event{Type: Connected, Peer: peer, Timestamp: time.Now()}
}

// NewDisconnected builds a Disconnected event for peer.
func NewDisconnected(peer Peer) Event {
	return Event{Type: Disconnected, Peer: peer, Timestamp: time.Now()}
}

// NewDataReceived builds a DataReceived event carrying a decoded value.
func NewDataReceived(peer Peer, data any) Event {
	return Event{Type: DataReceived, Peer: peer, Data: data, Timestamp: time.Now()}
}
