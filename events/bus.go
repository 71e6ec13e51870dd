// Package events provides the typed message bus used for all
// cross-system notifications. Delivery is synchronous and at most
// once within the tick an event is published.
package events

import "reflect"

// Bus routes typed events to their subscribers in subscription order.
// It is owned by the simulation's single logical thread; no locking.
type Bus struct {
	handlers map[reflect.Type][]func(any)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

// Subscribe registers fn for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], func(ev any) {
		fn(ev.(T))
	})
}

// Publish delivers ev to every subscriber of its type, synchronously.
func Publish[T any](b *Bus, ev T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for _, fn := range b.handlers[t] {
		fn(ev)
	}
}
