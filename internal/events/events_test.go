package events_test

import (
	"testing"

	"github.com/USA-RedDragon/rosbridge-client/internal/events"
)

func TestEmitOrder(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	var order []int
	emitter.On("data", events.NewListener(func(any) { order = append(order, 1) }))
	emitter.On("data", events.NewListener(func(any) { order = append(order, 2) }))
	emitter.On("data", events.NewListener(func(any) { order = append(order, 3) }))

	if !emitter.Emit("data", nil) {
		t.Fatal("expected at least one listener to run")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("listeners ran out of order: %v", order)
	}
}

func TestDuplicateRegistrationIsNoop(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	calls := 0
	listener := events.NewListener(func(any) { calls++ })
	emitter.On("data", listener)
	emitter.On("data", listener)

	emitter.Emit("data", nil)
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if emitter.ListenerCount("data") != 1 {
		t.Errorf("expected 1 listener, got %d", emitter.ListenerCount("data"))
	}
}

func TestOffUnknownIsNoop(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	emitter.Off("data", events.NewListener(func(any) {}))
	emitter.Off("never-registered", nil)
}

func TestOffStopsDelivery(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	calls := 0
	listener := events.NewListener(func(any) { calls++ })
	emitter.On("data", listener)
	emitter.Emit("data", nil)
	emitter.Off("data", listener)
	emitter.Emit("data", nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestOnce(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	calls := 0
	emitter.Once("ready", events.NewListener(func(any) { calls++ }))
	emitter.Emit("ready", nil)
	emitter.Emit("ready", nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPanicIsolation(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	var errPayload any
	emitter.On(events.ErrorEvent, events.NewListener(func(payload any) { errPayload = payload }))

	siblingRan := false
	emitter.On("data", events.NewListener(func(any) { panic("boom") }))
	emitter.On("data", events.NewListener(func(any) { siblingRan = true }))

	emitter.Emit("data", nil)

	if !siblingRan {
		t.Error("sibling listener did not run after a panic")
	}
	if errPayload != "boom" {
		t.Errorf("expected error event payload %q, got %v", "boom", errPayload)
	}
}

func TestReentrantRegistration(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	registered := false
	emitter.On("data", events.NewListener(func(any) {
		emitter.On("data", events.NewListener(func(any) { registered = true }))
	}))

	emitter.Emit("data", nil)
	emitter.Emit("data", nil)

	if !registered {
		t.Error("listener registered from within a handler never ran")
	}
}

func TestRemoveAll(t *testing.T) {
	t.Parallel()
	emitter := events.NewEmitter()

	calls := 0
	emitter.On("data", events.NewListener(func(any) { calls++ }))
	emitter.On("data", events.NewListener(func(any) { calls++ }))
	emitter.RemoveAll("data")

	if emitter.Emit("data", nil) {
		t.Error("expected no listeners after RemoveAll")
	}
	if calls != 0 {
		t.Errorf("expected 0 calls, got %d", calls)
	}
}
