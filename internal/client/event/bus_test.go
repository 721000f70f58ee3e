package event

import "testing"

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(func(Event) { order = append(order, "first") })
	bus.Subscribe(func(Event) { order = append(order, "second") })

	bus.Emit(Event{Type: SelfFetched})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("delivery order: %v", order)
	}
}

func TestBusEmitIsSynchronous(t *testing.T) {
	bus := NewBus()

	got := false
	bus.Subscribe(func(ev Event) {
		if ev.Type == MessageSent {
			got = true
		}
	})

	bus.Emit(Event{Type: MessageSent})
	if !got {
		t.Fatal("handler had not run when Emit returned")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })

	bus.Emit(Event{Type: SelfFetched})
	unsubscribe()
	bus.Emit(Event{Type: SelfFetched})

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}

	// A second unsubscribe is harmless.
	unsubscribe()
}

func TestBusSubscribeDuringEmit(t *testing.T) {
	bus := NewBus()

	lateCalls := 0
	bus.Subscribe(func(Event) {
		bus.Subscribe(func(Event) { lateCalls++ })
	})

	// The emit that created the late subscriber must not deliver to it.
	bus.Emit(Event{Type: SelfFetched})
	if lateCalls != 0 {
		t.Fatalf("late subscriber saw the triggering event %d times", lateCalls)
	}

	bus.Emit(Event{Type: SelfFetched})
	if lateCalls != 1 {
		t.Fatalf("late subscriber calls after second emit: %d", lateCalls)
	}
}
