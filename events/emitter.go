package events

import "sync"

// Emitter broadcasts events to its observers. Emit runs synchronously on the
// caller's goroutine and visits observers in registration order, so a slow
// observer delays the connection that emitted the event.
//
// The observer list is copy-on-write: Add and Remove may run concurrently with
// Emit, and an in-flight Emit keeps the list it started with.
type Emitter struct {
	mu        sync.Mutex
	observers []Observer
}

// NewEmitter creates an Emitter with the given observers registered in order.
//
// Parameters:
//   - observers: Observers to register; duplicates are kept
//
// Returns:
//   - A new *Emitter
func NewEmitter(observers ...Observer) *Emitter {
	e := &Emitter{}
	for _, o := range observers {
		e.Add(o)
	}

	return e
}

// Add appends an observer. Adding the same observer twice makes it receive
// every event twice. Nil observers are ignored.
//
// Parameters:
//   - o: The observer to register
func (e *Emitter) Add(o Observer) {
	if o == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make([]Observer, len(e.observers), len(e.observers)+1)
	copy(next, e.observers)
	e.observers = append(next, o)
}

// Remove unregisters the first occurrence of o. Observers that are not
// comparable are never matched.
//
// Parameters:
//   - o: The observer to remove
//
// Returns:
//   - true if an observer was removed
func (e *Emitter) Remove(o Observer) (removed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.observers {
		if sameObserver(existing, o) {
			next := make([]Observer, 0, len(e.observers)-1)
			next = append(next, e.observers[:i]...)
			e.observers = append(next, e.observers[i+1:]...)
			return true
		}
	}

	return false
}

// Len returns the number of registered observers, counting duplicates.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.observers)
}

// Emit dispatches event to every observer implementing the matching hook.
//
// Parameters:
//   - event: The event to broadcast
func (e *Emitter) Emit(event Event) {
	e.mu.Lock()
	observers := e.observers
	e.mu.Unlock()

	for _, o := range observers {
		switch event.Type {
		case Connected:
			if h, ok := o.(ConnectedObserver); ok {
				h.OnConnected(event.Peer)
			}
		case Disconnected:
			if h, ok := o.(DisconnectedObserver); ok {
				h.OnDisconnected(event.Peer)
			}
		case DataReceived:
			if h, ok := o.(DataObserver); ok {
				h.OnDataReceived(event.Peer, event.Data)
			}
		}
	}
}

// sameObserver compares observers without panicking on uncomparable values.
func sameObserver(a, b Observer) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()

	return a == b
}
