// Package ioloop folds timers, deferred callbacks, and readiness-driven
// network I/O into the same non-blocking per-tick step a core.VirtualCore
// calls once per scheduling loop iteration -- the Go side of the reactor
// the original qb framework runs on its event loop thread. It is named
// ioloop rather than io so it can be imported unqualified alongside the
// standard io package in the same files.
package ioloop

import (
	"container/heap"
	"sync"
	"time"
)

// TimerHandle cancels a scheduled timer callback. Canceling an already-fired
// or already-canceled timer is a no-op.
type TimerHandle struct {
	entry *timerEntry
}

// Cancel prevents entry's callback from firing, if it hasn't already.
func (h TimerHandle) Cancel() {
	if h.entry != nil {
		h.entry.canceled = true
	}
}

type timerEntry struct {
	at       time.Time
	interval time.Duration // zero for one-shot
	fn       func()
	canceled bool
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Reactor is one VirtualCore's non-blocking I/O step: a timer min-heap, a
// queue of zero-delay deferred callbacks (the qb async::callback
// equivalent), and a channel of events produced by connection-handling
// goroutines elsewhere in ioloop (tcp.go, udp.go, filewatcher.go).
//
// Step is only ever called from the owning VirtualCore's goroutine.
// Defer, Post and AfterFunc may be called from any goroutine, including the
// background readers that feed events.
type Reactor struct {
	mu       sync.Mutex
	timers   timerHeap
	deferred []func()

	events chan func()
	wake   func()
}

// NewReactor constructs a Reactor. wake, if non-nil, is called whenever an
// event is posted from another goroutine, so a parked VirtualCore notices
// the new work instead of waiting out its idle-tick budget.
func NewReactor(wake func()) *Reactor {
	return &Reactor{
		events: make(chan func(), 1024),
		wake:   wake,
	}
}

// AfterFunc schedules fn to run no earlier than d from now, on the next
// Step call after it comes due.
func (r *Reactor) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return r.schedule(d, 0, fn)
}

// Every schedules fn to run repeatedly, starting after d and then every d
// thereafter, until the returned handle is canceled.
func (r *Reactor) Every(d time.Duration, fn func()) TimerHandle {
	return r.schedule(d, d, fn)
}

func (r *Reactor) schedule(d, interval time.Duration, fn func()) TimerHandle {
	e := &timerEntry{at: time.Now().Add(d), interval: interval, fn: fn}

	r.mu.Lock()
	heap.Push(&r.timers, e)
	r.mu.Unlock()

	return TimerHandle{entry: e}
}

// Defer queues fn to run on the next Step call, from the owning
// VirtualCore's goroutine, with no particular delay -- the zero-delay
// callback the async package in the original framework exposes as
// async::callback.
func (r *Reactor) Defer(fn func()) {
	r.mu.Lock()
	r.deferred = append(r.deferred, fn)
	r.mu.Unlock()
}

// Post queues fn as an event coming from outside the owning VirtualCore's
// goroutine (a background reader, a timer elsewhere) and wakes the core if
// it is parked. fn runs on the next Step call.
//
// Post blocks the caller once the event queue is saturated, applying
// backpressure to whatever is posting (typically a connection's read loop)
// rather than running fn on the caller's own goroutine: fn usually touches
// state -- a Framer's buffer, a Protocol's parsing state -- that only Step's
// goroutine is meant to ever touch, so running it off-core would race Step.
func (r *Reactor) Post(fn func()) {
	if r.wake != nil {
		r.wake()
	}
	r.events <- fn
}

// Step runs one non-blocking pass: due timers, queued deferred callbacks,
// and posted events, in that order. It reports whether it did any work, the
// signal the VirtualCore's tick uses to decide whether to keep spinning or
// start counting toward parking.
func (r *Reactor) Step() bool {
	progressed := false

	now := time.Now()
	for {
		r.mu.Lock()
		if len(r.timers) == 0 || r.timers[0].at.After(now) {
			r.mu.Unlock()
			break
		}
		e := heap.Pop(&r.timers).(*timerEntry)
		r.mu.Unlock()

		if e.canceled {
			continue
		}
		e.fn()
		progressed = true

		if e.interval > 0 && !e.canceled {
			e.at = now.Add(e.interval)
			r.mu.Lock()
			heap.Push(&r.timers, e)
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	deferred := r.deferred
	r.deferred = nil
	r.mu.Unlock()
	for _, fn := range deferred {
		fn()
		progressed = true
	}

drainEvents:
	for {
		select {
		case fn := <-r.events:
			fn()
			progressed = true
		default:
			break drainEvents
		}
	}

	return progressed
}

// Idle reports whether the reactor currently has no due-or-pending timers,
// no queued deferred callbacks, and no buffered events awaiting Step --
// the "no pending I/O" half of a VirtualCore's self-exit condition. It
// cannot see whether some other goroutine is about to call Post a moment
// later; a Reactor serving live connections can look momentarily idle
// between messages, which is why self-exit also requires the core's actor
// count to have reached zero, not Idle alone.
func (r *Reactor) Idle() bool {
	r.mu.Lock()
	idle := len(r.timers) == 0 && len(r.deferred) == 0
	r.mu.Unlock()
	return idle && len(r.events) == 0
}
