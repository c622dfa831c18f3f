package support

import "github.com/lightningnetwork/lnd/fn/v2"

// Latest holds the most recent value an actor has seen of some type, as an
// fn.Option so "nothing has arrived yet" is a distinct, typed state rather
// than a zero value indistinguishable from a real one.
//
// Latest is not safe for concurrent use; like everything else reachable
// from a core.Context, it is only ever touched by the owning actor's
// VirtualCore goroutine.
type Latest[T any] struct {
	value fn.Option[T]
}

// Set records v as the latest value.
func (l *Latest[T]) Set(v T) {
	l.value = fn.Some(v)
}

// Get returns the latest value, or None if Set has never been called.
func (l *Latest[T]) Get() fn.Option[T] {
	return l.value
}

// Clear resets Latest back to the "nothing seen yet" state.
func (l *Latest[T]) Clear() {
	l.value = fn.None[T]()
}
