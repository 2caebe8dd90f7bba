package intersections

import infinity "github.com/Code-Hex/go-infinity-channel"

// feed is an unbounded, multi-reader channel: sends never block, and
// the Out() channel may be read from multiple goroutines (they
// compete for values, exactly like the reference implementation's
// crossbeam_channel::unbounded — "cloning" a receiver there is just
// passing the same MPMC handle around, which is what sharing a Go
// channel value already gives us).
//
// Every per-component, per-group-kind, and intersection-level
// notification channel in this package is a feed so that set_state
// emissions never stall a hot path on a slow or absent subscriber.
type feed[T any] struct {
	ch *infinity.Channel[T]
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{ch: infinity.NewChannel[T]()}
}

// send enqueues v. Never blocks.
func (f *feed[T]) send(v T) {
	f.ch.In() <- v
}

// out returns the receive side. Safe to share across goroutines.
func (f *feed[T]) out() <-chan T {
	return f.ch.Out()
}

// close releases the backing goroutine. Only called when an
// Intersection is torn down; groups and components live for the
// process lifetime in normal operation.
func (f *feed[T]) close() {
	f.ch.Close()
}
