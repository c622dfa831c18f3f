package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// defaultRingCapacity is the per-pair SPSC ring size used when an Engine is
// built with EngineConfig's zero value.
const defaultRingCapacity = 1024

// defaultDrainBudget bounds how many frames a VirtualCore drains from a
// single inbound ring before rotating to the next peer, so one noisy
// producer can't starve the others within a tick.
const defaultDrainBudget = 256

// defaultParkAfterIdleTicks is how many consecutive no-progress ticks a
// VirtualCore runs before it parks on its doorbell instead of spinning.
const defaultParkAfterIdleTicks = 64

// VirtualCore is one cooperative event loop, pinned (in the goroutine
// sense -- Go gives us no cheaper thread-affinity primitive) to a fixed set
// of actors it owns exclusively. No actor state is ever touched by any
// goroutine other than the one running its owning VirtualCore.
type VirtualCore struct {
	id     CoreID
	engine *Engine

	cells       map[ServiceID]*actorCell
	nextService ServiceID

	local     localQueue
	callbacks callbackSet

	// scratch is the single Context reused across every OnInit call, event
	// dispatch, and OnCallback invocation on this core. Reuse avoids an
	// allocation per dispatched frame; handlers must never retain it.
	scratch Context

	wake      chan struct{}
	idleTicks int

	// externalCh carries events injected from outside the scheduler
	// entirely (ioloop readers, or any other goroutine that isn't itself
	// a VirtualCore), as opposed to the lock-free SPSC rings used between
	// cores. A Go channel gives it safe multi-producer semantics for free.
	externalCh chan frame

	drainBudget int

	// ioStep, when set by SetIOStep, is invoked once per tick after
	// mailbox and callback processing, per the scheduler's drain order. It
	// reports whether it made progress (for the parking heuristic).
	ioStep func() bool

	// ioIdle, when set by SetIOIdle, reports whether the I/O reactor
	// installed via SetIOStep currently has no pending timers, deferred
	// callbacks, or buffered events -- the "no pending I/O" half of this
	// core's self-exit condition. A core with no ioIdle installed is always
	// considered I/O-idle.
	ioIdle func() bool

	// deadLetters counts frames skipped because their destination was
	// dead, terminating, or never existed; unhandled counts frames whose
	// destination was alive but had no handler registered for the frame's
	// type. Both are written only by the owning goroutine but read from
	// anywhere (tests, metrics), hence atomic.
	deadLetters atomic.Uint64
	unhandled   atomic.Uint64
}

func newVirtualCore(id CoreID, engine *Engine) *VirtualCore {
	return &VirtualCore{
		id:          id,
		engine:      engine,
		cells:       make(map[ServiceID]*actorCell),
		wake:        make(chan struct{}, 1),
		externalCh:  make(chan frame, defaultRingCapacity),
		drainBudget: defaultDrainBudget,
	}
}

// spawn registers factory's actor under the next ServiceID on this core. It
// only ever runs during Engine construction, before Start, so it needs no
// synchronization.
func (vc *VirtualCore) spawn(factory ActorFactory) ActorId {
	vc.nextService++
	id := ActorId{Core: vc.id, Service: vc.nextService}

	cell := &actorCell{
		id:       id,
		behavior: factory(),
		handlers: make(map[EventTypeID]handlerThunk),
	}
	vc.cells[id.Service] = cell

	return id
}

// initAll runs OnInit for every actor on this core, in registration order.
// An actor whose OnInit returns false (or panics) is marked dead on the
// spot, recorded on the Engine, and never dispatched to.
func (vc *VirtualCore) initAll() {
	for svc := ServiceID(1); svc <= vc.nextService; svc++ {
		cell, ok := vc.cells[svc]
		if !ok {
			continue
		}

		if !vc.initOne(cell) {
			cell.state = actorDead
			cell.terminating = true
			vc.engine.markDead(cell.id)
		}
	}
}

// initOne runs a single actor's OnInit behind its own recover boundary, so
// one actor blowing up during construction doesn't stop its siblings on the
// same core from initializing.
func (vc *VirtualCore) initOne(cell *actorCell) (admitted bool) {
	defer func() {
		if r := recover(); r != nil {
			admitted = false
			vc.engine.recordErr(&RuntimeError{
				Kind:  ErrKindPanic,
				Core:  vc.id,
				Actor: cell.id,
				Err:   fmt.Errorf("init: %v", r),
			})
		}
	}()

	vc.scratch.vcore = vc
	vc.scratch.cell = cell
	vc.scratch.source = ActorId{}

	if !cell.behavior.OnInit(&vc.scratch) {
		vc.engine.recordErr(&RuntimeError{
			Kind:  ErrKindInit,
			Core:  vc.id,
			Actor: cell.id,
			Err:   errors.New("OnInit returned false"),
		})
		return false
	}
	return true
}

// SetIOStep installs the non-blocking reactor step run once per tick, after
// mailbox and callback processing, per the scheduler's drain order. It must
// be called before Engine.Start; calling it afterward races the core's own
// goroutine and is not supported.
func (vc *VirtualCore) SetIOStep(step func() bool) {
	vc.ioStep = step
}

// SetIOIdle installs the reactor's Idle check used by the self-exit
// condition in run: a core never exits while its reactor reports pending
// timers, deferred callbacks, or buffered events, even if it currently owns
// no live actors. Like SetIOStep, it must be called before Engine.Start.
func (vc *VirtualCore) SetIOIdle(idle func() bool) {
	vc.ioIdle = idle
}

// liveActorCount reports how many of this core's actors are neither
// terminating nor dead -- the "own actor count" half of the self-exit
// condition.
func (vc *VirtualCore) liveActorCount() int {
	n := 0
	for _, cell := range vc.cells {
		if !cell.terminating && cell.state != actorDead {
			n++
		}
	}
	return n
}

// ID returns the CoreID this VirtualCore was registered under.
func (vc *VirtualCore) ID() CoreID {
	return vc.id
}

// wakeUp nudges a parked VirtualCore without blocking the caller; it is
// safe to call from any goroutine, including another core's.
func (vc *VirtualCore) wakeUp() {
	select {
	case vc.wake <- struct{}{}:
	default:
	}
}

// Wake nudges this VirtualCore if it is parked. Exported so components like
// ioloop.Reactor, which post work from goroutines outside the scheduler,
// can ensure a parked core notices new I/O instead of waiting out its idle
// budget.
func (vc *VirtualCore) Wake() {
	vc.wakeUp()
}

// sendEvent is the single routing entry point used by Push, Reply and
// Forward: it expands broadcast destinations against the Engine's static
// roster and otherwise delivers directly.
func (vc *VirtualCore) sendEvent(src, dst ActorId, typeID EventTypeID, msg Message) {
	if dst.IsBroadcast() {
		vc.engine.fanout(vc, src, dst, typeID, msg)
		return
	}
	vc.deliver(src, dst, typeID, msg)
}

// deliver routes one concrete, non-broadcast frame: onto the local queue if
// addressed to this very core, or onto the outbound SPSC ring to the target
// core otherwise. Either path applies backpressure rather than drop events.
func (vc *VirtualCore) deliver(src, dst ActorId, typeID EventTypeID, msg Message) {
	f := frame{
		eventHeader: eventHeader{
			typeID:      typeID,
			source:      src,
			destination: dst,
			alive:       vc.engine.liveAt(dst),
			isLive:      true,
		},
		payload: msg,
	}

	if dst.Core == vc.id {
		vc.local.push(f)
		return
	}

	// No ring means the destination core was never registered: a publish
	// failure, reported as a silent drop plus counter increment.
	r := vc.engine.ringTo(vc.id, dst.Core)
	if r == nil {
		vc.deadLetters.Add(1)
		return
	}
	r.push(f)
	vc.engine.wakeCore(dst.Core)
}

// dispatch runs one frame against its destination cell's handler table, if
// the destination is still alive and handled. Dead or unhandled frames are
// simply skipped; the read cursor has already advanced by the time dispatch
// is called, which is what "still delivered but not invoked" means for a
// dead destination.
func (vc *VirtualCore) dispatch(f frame) {
	cell, ok := vc.cells[f.destination.Service]
	if !ok || cell.state == actorDead || cell.terminating {
		vc.deadLetters.Add(1)
		return
	}

	if f.typeID == killEventType {
		handler, ok := cell.handlers[killEventType]
		if !ok {
			// Default kill behavior: no user handler means the actor dies.
			cell.terminating = true
			vc.engine.markDead(cell.id)
			return
		}
		// A user-registered kill handler replaces the default: the actor
		// terminates only if the handler itself calls Kill.
		vc.runHandler(cell, f.source, handler, f.payload)
		return
	}

	handler, ok := cell.handlers[f.typeID]
	if !ok {
		vc.unhandled.Add(1)
		return
	}

	vc.runHandler(cell, f.source, handler, f.payload)
}

// runHandler invokes handler with a recover boundary around it: a panic
// inside one actor's event handler is treated as an implicit Kill of that
// actor alone (matching the terminating path Context.Kill takes) and
// recorded on the Engine, rather than unwinding into tick and taking down
// every other actor this VirtualCore owns.
func (vc *VirtualCore) runHandler(cell *actorCell, source ActorId, handler handlerThunk, payload any) {
	defer func() {
		if r := recover(); r != nil {
			cell.terminating = true
			vc.engine.markDead(cell.id)
			vc.engine.recordErr(&RuntimeError{
				Kind:  ErrKindPanic,
				Core:  vc.id,
				Actor: cell.id,
				Err:   fmt.Errorf("event handler: %v", r),
			})
		}
	}()

	vc.scratch.vcore = vc
	vc.scratch.cell = cell
	vc.scratch.source = source
	handler(&vc.scratch, payload)
}

// tick runs one iteration of the drain order described by the scheduler
// design: inbound inter-core rings in a fair rotation with a bounded
// budget, then the external-injection channel under the same budget, then
// the intra-core local queue, then registered callbacks, then
// one non-blocking step of the I/O reactor. It reports whether any work was
// done, which drives the parking heuristic in run.
func (vc *VirtualCore) tick() (progressed bool) {
	for _, peer := range vc.engine.peersOf(vc.id) {
		ring := vc.engine.ringTo(peer, vc.id)

		budget := ring.len()
		if budget > vc.drainBudget {
			budget = vc.drainBudget
		}

		for i := 0; i < budget; i++ {
			f, ok := ring.pop()
			if !ok {
				break
			}
			vc.dispatch(f)
			progressed = true
		}
	}

externalDrain:
	for i := 0; i < vc.drainBudget; i++ {
		select {
		case f := <-vc.externalCh:
			vc.dispatch(f)
			progressed = true
		default:
			break externalDrain
		}
	}

	vc.local.drainAll(func(f frame) {
		vc.dispatch(f)
		progressed = true
	})

	if len(vc.callbacks.order) > 0 {
		vc.callbacks.runAll(vc)
		vc.callbacks.sweep()
		progressed = true
	}

	if vc.ioStep != nil {
		if vc.ioStep() {
			progressed = true
		}
	}

	return progressed
}

// run is the VirtualCore's goroutine body: it ticks until ctx is canceled or
// it satisfies its own self-exit condition, parking on its doorbell channel
// after a run of idle ticks rather than spinning the CPU in between.
func (vc *VirtualCore) run(ctx context.Context) {
	vc.initAll()

	for {
		select {
		case <-ctx.Done():
			vc.shutdown()
			return
		default:
		}

		if vc.canExit() {
			return
		}

		if vc.tick() {
			vc.idleTicks = 0
			continue
		}

		vc.idleTicks++
		if vc.idleTicks < defaultParkAfterIdleTicks {
			runtime.Gosched()
			continue
		}

		// Only Post rings the doorbell; the reactor's timers and deferred
		// callbacks do not. While the reactor reports pending work the core
		// therefore waits at most a millisecond before ticking again, so due
		// timers run and the self-exit check is repeated once it drains.
		var poll <-chan time.Time
		if vc.ioIdle != nil && !vc.ioIdle() {
			poll = time.After(time.Millisecond)
		}

		select {
		case <-ctx.Done():
			vc.shutdown()
			return
		case <-vc.wake:
			vc.idleTicks = 0
		case <-poll:
		}
	}
}

// shutdown is the cooperative stop path: a synthetic kill event is enqueued
// to every still-live actor on this core, then the core keeps ticking until
// either every actor is gone or a tick makes no further progress, so kill
// handlers run and already-queued frames drain before the goroutine exits.
// An actor whose kill handler declines to terminate does not wedge shutdown;
// the drain simply ends once the core goes quiet.
func (vc *VirtualCore) shutdown() {
	for svc := ServiceID(1); svc <= vc.nextService; svc++ {
		cell, ok := vc.cells[svc]
		if !ok || cell.terminating || cell.state == actorDead {
			continue
		}
		vc.local.push(frame{
			eventHeader: eventHeader{
				typeID:      killEventType,
				destination: cell.id,
				alive:       true,
				isLive:      true,
			},
			payload: KillMsg{Reason: "engine stop"},
		})
	}

	for vc.tick() {
		if vc.liveActorCount() == 0 {
			break
		}
	}

	// Whatever still sits in the inbound rings at this point will never be
	// dispatched; account for it as dropped.
	for _, peer := range vc.engine.peersOf(vc.id) {
		if r := vc.engine.ringTo(peer, vc.id); r != nil {
			vc.deadLetters.Add(uint64(r.len()))
		}
	}
}

// DeadLetters reports how many frames this core has skipped because their
// destination was dead, terminating, or unknown.
func (vc *VirtualCore) DeadLetters() uint64 {
	return vc.deadLetters.Load()
}

// UnhandledEvents reports how many frames reached a live destination that
// had no handler registered for the frame's event type.
func (vc *VirtualCore) UnhandledEvents() uint64 {
	return vc.unhandled.Load()
}

// canExit reports whether this VirtualCore has met the scheduler's self-exit
// condition: it owns no live actors, has no actor registered for callback
// dispatch, and its I/O reactor (if any) is idle. A core that never owned
// any actors (an I/O-only core with a reactor always installed, or one left
// empty by the caller) satisfies the first two legs immediately and exits as
// soon as its reactor goes idle, rather than spinning forever.
func (vc *VirtualCore) canExit() bool {
	if vc.liveActorCount() > 0 {
		return false
	}
	if len(vc.callbacks.order) > 0 {
		return false
	}
	return vc.ioIdle == nil || vc.ioIdle()
}
