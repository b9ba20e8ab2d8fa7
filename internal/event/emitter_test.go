package event

import (
	"sync"
	"sync/atomic"
	"testing"
)

type testEvent struct {
	Value int
}

func TestEmitter_OnEvent(t *testing.T) {
	var e Emitter[testEvent]

	var received []testEvent
	e.OnEvent(func(ev testEvent) {
		received = append(received, ev)
	})

	e.Emit(testEvent{Value: 42})

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Value != 42 {
		t.Errorf("expected value 42, got %d", received[0].Value)
	}
}

func TestEmitter_MultipleHandlers(t *testing.T) {
	var e Emitter[testEvent]

	var count1, count2 int
	e.OnEvent(func(_ testEvent) {
		count1++
	})
	e.OnEvent(func(_ testEvent) {
		count2++
	})

	e.Emit(testEvent{Value: 1})

	if count1 != 1 {
		t.Errorf("handler 1 expected 1 call, got %d", count1)
	}
	if count2 != 1 {
		t.Errorf("handler 2 expected 1 call, got %d", count2)
	}
}

func TestEmitter_NoHandlers(t *testing.T) {
	var e Emitter[testEvent]
	// Must not panic.
	e.Emit(testEvent{Value: 1})
}

func TestEmitter_PanicIsolation(t *testing.T) {
	var e Emitter[testEvent]

	var after int
	e.OnEvent(func(_ testEvent) {
		panic("handler failure")
	})
	e.OnEvent(func(_ testEvent) {
		after++
	})

	e.Emit(testEvent{Value: 1})

	if after != 1 {
		t.Errorf("handler after panicking handler expected 1 call, got %d", after)
	}
}

func TestEmitter_Remove(t *testing.T) {
	var e Emitter[testEvent]

	var kept, removed int
	e.OnEvent(func(_ testEvent) {
		kept++
	})
	off := e.On(func(_ testEvent) {
		removed++
	})

	e.Emit(testEvent{Value: 1})
	off()
	e.Emit(testEvent{Value: 2})

	if kept != 2 {
		t.Errorf("kept handler expected 2 calls, got %d", kept)
	}
	if removed != 1 {
		t.Errorf("removed handler expected 1 call, got %d", removed)
	}
}

func TestEmitter_ConcurrentEmit(t *testing.T) {
	var e Emitter[testEvent]

	var total atomic.Int64
	e.OnEvent(func(_ testEvent) {
		total.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.Emit(testEvent{Value: j})
			}
		}()
	}
	wg.Wait()

	if total.Load() != 1000 {
		t.Errorf("expected 1000 deliveries, got %d", total.Load())
	}
}

func TestEmitter_RegisterDuringEmit(t *testing.T) {
	var e Emitter[testEvent]

	e.OnEvent(func(_ testEvent) {
		// Registering while an emit is in flight must not deadlock.
		e.OnEvent(func(_ testEvent) {})
	})

	e.Emit(testEvent{Value: 1})
}
