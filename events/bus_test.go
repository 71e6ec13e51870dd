package events

import "testing"

type testEvent struct {
	value int
}

type otherEvent struct {
	name string
}

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()

	var got []int
	Subscribe(bus, func(ev testEvent) { got = append(got, ev.value) })

	Publish(bus, testEvent{value: 7})
	Publish(bus, testEvent{value: 9})

	if len(got) != 2 || got[0] != 7 || got[1] != 9 {
		t.Errorf("received %v", got)
	}
}

func TestTypeIsolation(t *testing.T) {
	bus := NewBus()

	var tests, others int
	Subscribe(bus, func(testEvent) { tests++ })
	Subscribe(bus, func(otherEvent) { others++ })

	Publish(bus, testEvent{})
	if tests != 1 || others != 0 {
		t.Errorf("tests=%d others=%d after a testEvent", tests, others)
	}
	Publish(bus, otherEvent{})
	if others != 1 {
		t.Errorf("others=%d after an otherEvent", others)
	}
}

func TestSubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	Subscribe(bus, func(testEvent) { order = append(order, "first") })
	Subscribe(bus, func(testEvent) { order = append(order, "second") })

	Publish(bus, testEvent{})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestSynchronousDelivery(t *testing.T) {
	bus := NewBus()

	delivered := false
	Subscribe(bus, func(testEvent) { delivered = true })
	Publish(bus, testEvent{})
	if !delivered {
		t.Error("publish returned before delivery")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	Publish(bus, testEvent{value: 1}) // must not panic
}
