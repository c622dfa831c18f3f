package core

import "fmt"

// ICallback is the optional interface an Actor's behavior can implement to
// be driven once per scheduler tick, independent of event dispatch. A
// callback-registered actor has OnCallback invoked at most once per tick,
// never re-entrantly with one of its own event handlers, and never once it
// has called Kill.
type ICallback interface {
	// OnCallback runs once per scheduler tick for as long as the actor
	// stays registered via RegisterCallback.
	OnCallback(ctx *Context)
}

// callbackSet tracks the callback-registered actors on one VirtualCore in
// registration order, which is the order OnCallback is invoked each tick.
// It is only ever touched by the owning core's goroutine.
type callbackSet struct {
	order []*actorCell
}

// register adds cell if it isn't already registered. Re-registering an
// already-registered actor is a no-op; RegisterCallback is idempotent.
func (s *callbackSet) register(cell *actorCell) {
	if cell.callbackRegistered {
		return
	}
	cell.callbackRegistered = true
	s.order = append(s.order, cell)
}

// unregister removes cell. Calling it on an actor that isn't registered is
// a no-op.
func (s *callbackSet) unregister(cell *actorCell) {
	if !cell.callbackRegistered {
		return
	}
	cell.callbackRegistered = false

	for i, c := range s.order {
		if c == cell {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// runAll invokes OnCallback for every still-registered, still-alive actor,
// in registration order, skipping any actor that has terminated since it
// registered. A panicking OnCallback is recovered exactly like a panicking
// event handler: an implicit Kill of that actor alone, recorded on the
// Engine, with every other registered actor's callback still running this
// tick.
func (s *callbackSet) runAll(vc *VirtualCore) {
	for _, cell := range s.order {
		if cell.terminating || !cell.callbackRegistered {
			continue
		}

		cb, ok := cell.behavior.(ICallback)
		if !ok {
			continue
		}

		s.runOne(vc, cell, cb)
	}
}

func (s *callbackSet) runOne(vc *VirtualCore, cell *actorCell, cb ICallback) {
	defer func() {
		if r := recover(); r != nil {
			cell.terminating = true
			vc.engine.markDead(cell.id)
			vc.engine.recordErr(&RuntimeError{
				Kind:  ErrKindPanic,
				Core:  vc.id,
				Actor: cell.id,
				Err:   fmt.Errorf("callback: %v", r),
			})
		}
	}()

	vc.scratch.vcore = vc
	vc.scratch.cell = cell
	vc.scratch.source = ActorId{}
	cb.OnCallback(&vc.scratch)
}

// sweep drops any terminated actors from the registration order. Called
// once per tick after dispatch, so a dead actor's slot isn't walked forever.
func (s *callbackSet) sweep() {
	if len(s.order) == 0 {
		return
	}

	alive := s.order[:0]
	for _, cell := range s.order {
		if cell.callbackRegistered && !cell.terminating {
			alive = append(alive, cell)
		}
	}
	s.order = alive
}
