// Package events provides a per-instance synchronous subscriber registry.
package events

import "sync"

// Kind discriminates the notification payload.
type Kind string

const (
	KindStatusChanged   Kind = "status_changed"
	KindMessageAppended Kind = "message_appended"
	KindRecordChanged   Kind = "record_changed"
	KindErrorRaised     Kind = "error_raised"
)

// Event is one notification. Payload is an immutable snapshot owned by the
// receiver; emitters must never hand out live references.
type Event struct {
	Kind    Kind
	Payload any
}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(Event)

// Emitter is owned by exactly one controller instance. The zero value is
// not usable; construct with New.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
	closed    bool
}

func New() *Emitter {
	return &Emitter{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its unsubscribe handle.
// Subscribing to a closed emitter returns a no-op handle.
func (e *Emitter) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}

	id := e.nextID
	e.nextID++
	e.listeners[id] = listener

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// Emit delivers the event to every current subscriber.
func (e *Emitter) Emit(event Event) {
	e.mu.Lock()
	snapshot := make([]Listener, 0, len(e.listeners))
	for _, listener := range e.listeners {
		snapshot = append(snapshot, listener)
	}
	e.mu.Unlock()

	for _, listener := range snapshot {
		listener(event)
	}
}

// Close tears down all subscriptions; further Emit calls are silent no-ops
// for listeners removed here.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.listeners = make(map[int]Listener)
}
