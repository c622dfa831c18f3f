// Package support collects small actor-composition helpers on top of core,
// in the spirit of the request/response and fan-out conveniences a classic
// actor toolkit offers -- reworked here for a single-goroutine-per-core
// scheduler where a handler can never block without stalling every other
// actor that core owns. Where the blocking-Future style used a channel and
// a wait, these helpers register a one-shot continuation instead.
package support

import (
	"github.com/qb-go/qbcore/core"
)

// Ask sends req to dst and arranges for onReply to run, on this actor, the
// first time a Resp event arrives afterward. The Resp's source is not
// checked: a Resp from any actor fires the continuation. It is a convenience
// over core.RegisterEvent + core.Push for the common "fire one request,
// handle exactly one response" shape; onReply replaces whatever Resp
// handler the actor had registered, and removes itself after firing once.
//
// Unlike a blocking Ask/Await, this never parks the calling VirtualCore: the
// continuation simply runs as a normal event dispatch whenever the reply
// lands.
func Ask[Req, Resp core.Message](ctx *core.Context, dst core.ActorId, req Req, onReply func(ctx *core.Context, resp Resp)) {
	core.RegisterEvent(ctx, func(ctx *core.Context, resp Resp) {
		core.UnregisterEvent[Resp](ctx)
		onReply(ctx, resp)
	})
	core.Push(ctx, dst, req)
}

// AskWithTimeout behaves like Ask, but is meant to be paired with a timer
// the caller schedules separately (e.g. via ioloop.Reactor.AfterFunc): it
// returns a fired func the caller's timeout callback checks before acting.
// fired reports true once onReply has run, and the Resp handler is
// deregistered at that point, so a timeout callback running after the reply
// sees true. The guard covers only that order: if the timeout acts first,
// the Resp handler stays registered and a reply arriving later still runs
// onReply.
func AskWithTimeout[Req, Resp core.Message](ctx *core.Context, dst core.ActorId, req Req, onReply func(ctx *core.Context, resp Resp)) (fired func() bool) {
	var done bool

	core.RegisterEvent(ctx, func(ctx *core.Context, resp Resp) {
		if done {
			return
		}
		done = true
		core.UnregisterEvent[Resp](ctx)
		onReply(ctx, resp)
	})
	core.Push(ctx, dst, req)

	return func() bool { return done }
}

// TellAll pushes msg to every destination in dsts, in order.
func TellAll[M core.Message](ctx *core.Context, dsts []core.ActorId, msg M) {
	for _, dst := range dsts {
		core.Push(ctx, dst, msg)
	}
}

// Relay installs a handler that forwards every Resp it receives to dst
// unchanged, preserving the original source -- a stable pipe between two
// actors that neither needs to know about the other's identity beyond the
// relay.
func Relay[Resp core.Message](ctx *core.Context, dst core.ActorId) {
	core.RegisterEvent(ctx, func(ctx *core.Context, resp Resp) {
		core.Forward(ctx, dst, resp)
	})
}
