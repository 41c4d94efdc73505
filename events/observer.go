package events

// Observer is any value implementing zero or more of ConnectedObserver,
// DisconnectedObserver and DataObserver. Hooks it does not implement are
// skipped.
type Observer any

// ConnectedObserver is notified when a connection is established.
type ConnectedObserver interface {
	OnConnected(peer Peer)
}

// DisconnectedObserver is notified once when a connection terminates.
type DisconnectedObserver interface {
	OnDisconnected(peer Peer)
}

// DataObserver is notified for every decoded unit, in stream order.
type DataObserver interface {
	OnDataReceived(peer Peer, data any)
}

// ObserverFuncs adapts plain functions to the observer hooks. Nil fields are
// no-ops.
type ObserverFuncs struct {
	Connected    func(peer Peer)
	Disconnected func(peer Peer)
	Data         func(peer Peer, data any)
}

// OnConnected implements ConnectedObserver.
func (o ObserverFuncs) OnConnected(peer Peer) {
	if o.Connected != nil {
		o.Connected(peer)
	}
}

// OnDisconnected implements DisconnectedObserver.
func (o ObserverFuncs) OnDisconnected(peer Peer) {
	if o.Disconnected != nil {
		o.Disconnected(peer)
	}
}

// OnDataReceived implements DataObserver.
func (o ObserverFuncs) OnDataReceived(peer Peer, data any) {
	if o.Data != nil {
		o.Data(peer, data)
	}
}
