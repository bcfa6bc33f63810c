package events

import (
	"log/slog"
	"sync"
)

// ErrorEvent is the reserved event name used to report recovered listener
// panics. Emitting it never recurses back into error handling.
const ErrorEvent = "error"

// Listener wraps a callback so it has a stable identity. The same Listener
// can be registered and removed across events; two Listeners built from the
// same function are distinct.
type Listener struct {
	fn func(any)
}

func NewListener(fn func(any)) *Listener {
	return &Listener{fn: fn}
}

// Invoke calls the wrapped function directly, outside any event dispatch.
func (l *Listener) Invoke(payload any) {
	l.fn(payload)
}

type entry struct {
	listener *Listener
	invoke   func(any)
}

// Emitter is a named-event registry. Registration order is preserved,
// registering a Listener twice under the same event is a no-op, and so is
// removing one that was never added.
type Emitter struct {
	mutex  sync.Mutex
	events map[string][]entry
}

func NewEmitter() *Emitter {
	return &Emitter{
		events: make(map[string][]entry),
	}
}

func (e *Emitter) On(event string, listener *Listener) {
	if listener == nil {
		return
	}
	e.add(event, listener, listener.fn)
}

// Once registers a listener that removes itself before its first invocation.
func (e *Emitter) Once(event string, listener *Listener) {
	if listener == nil {
		return
	}
	e.add(event, listener, func(payload any) {
		e.Off(event, listener)
		listener.fn(payload)
	})
}

func (e *Emitter) add(event string, listener *Listener, invoke func(any)) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for _, existing := range e.events[event] {
		if existing.listener == listener {
			return
		}
	}
	e.events[event] = append(e.events[event], entry{listener: listener, invoke: invoke})
}

func (e *Emitter) Off(event string, listener *Listener) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	entries := e.events[event]
	for i, existing := range entries {
		if existing.listener == listener {
			e.events[event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (e *Emitter) RemoveAll(event string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.events, event)
}

func (e *Emitter) ListenerCount(event string) int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.events[event])
}

// Emit invokes every listener registered for event, in registration order,
// with the listeners snapshotted up front so they are free to register or
// remove listeners while running. A panicking listener is recovered, logged
// and reported on the error event; its siblings still run. Returns true if
// at least one listener was invoked.
func (e *Emitter) Emit(event string, payload any) bool {
	e.mutex.Lock()
	snapshot := make([]entry, len(e.events[event]))
	copy(snapshot, e.events[event])
	e.mutex.Unlock()

	for _, item := range snapshot {
		e.safeInvoke(event, item, payload)
	}

	return len(snapshot) > 0
}

func (e *Emitter) safeInvoke(event string, item entry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event listener panicked", "event", event, "panic", r)
			if event != ErrorEvent {
				e.Emit(ErrorEvent, r)
			}
		}
	}()
	item.invoke(payload)
}
