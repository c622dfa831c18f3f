package core

// Actor is the contract every user-defined actor behavior implements.
// OnInit is called exactly once, before any event is dispatched to the
// actor: returning false discards the actor (it moves straight to the Dead
// state and is never scheduled) while returning true admits it to the
// Alive state.
type Actor interface {
	OnInit(ctx *Context) bool
}

// actorState is the lifecycle of an actor as tracked by its owning
// VirtualCore. It is never observed or mutated by any goroutine other than
// the one running that core.
type actorState uint8

const (
	actorAlive actorState = iota
	actorTerminating
	actorDead
)

// actorCell is the owning VirtualCore's bookkeeping record for one actor:
// its identity, its behavior, its per-type event handler table, and its
// callback registration. Cells are never shared across cores.
type actorCell struct {
	id       ActorId
	behavior Actor
	state    actorState

	// terminating is the hot-path liveness flag, checked on every
	// dispatched frame and every callback tick. Kill, a recovered panic,
	// the default kill handling and a failed OnInit set it; state is left
	// as it was (only a failed OnInit moves it to actorDead).
	terminating bool

	handlers map[EventTypeID]handlerThunk

	callbackRegistered bool
}

// Context is handed to every OnInit call, every event handler, and every
// OnCallback call. It carries the identity of the actor being driven, the
// source of the event currently being processed (zero-valued outside of
// event handlers), and a back-reference to the owning VirtualCore so the
// package-level Push/Reply/Forward/Broadcast/Kill helpers can route events.
//
// A Context is only ever used on the goroutine of the VirtualCore that
// created it; handlers must not retain a Context past the call that handed
// it to them.
type Context struct {
	vcore  *VirtualCore
	cell   *actorCell
	source ActorId
}

// Self returns the identity of the actor this Context belongs to.
func (c *Context) Self() ActorId {
	return c.cell.id
}

// Source returns the source actor of the event currently being handled. It
// is the zero ActorId during OnInit and OnCallback, neither of which are
// triggered by an incoming event.
func (c *Context) Source() ActorId {
	return c.source
}

// Kill marks the actor as terminating. It is idempotent: calling it more
// than once, from the same or different handlers, collapses to a single
// termination. From then on nothing more is dispatched to the actor: frames
// already queued for it, including those later in the current tick, are
// skipped and counted as dead letters.
func (c *Context) Kill() {
	c.cell.terminating = true
	c.vcore.engine.markDead(c.cell.id)
}

// VCore returns the owning VirtualCore, for components (e.g. the I/O
// reactor bridge) that need lower-level scheduler access than the
// Push/Reply/Forward/Broadcast helpers expose.
func (c *Context) VCore() *VirtualCore {
	return c.vcore
}

// Push constructs and enqueues msg addressed to dst. Push guarantees
// at-most-one handler invocation per call: it either lands in exactly one
// mailbox slot that is later dispatched once, or it is dropped (dead
// destination, full-ring backpressure aside, never silently duplicated).
func Push[M Message](ctx *Context, dst ActorId, msg M) {
	ctx.vcore.sendEvent(ctx.cell.id, dst, RegisterEventType[M](), msg)
}

// Reply is shorthand for Push(ctx, ctx.Source(), msg): it addresses msg
// back to whoever sent the event currently being handled.
func Reply[M Message](ctx *Context, msg M) {
	Push(ctx, ctx.Source(), msg)
}

// Forward rewrites the destination of the event currently being handled to
// newDst while preserving the original source identity, then re-enqueues
// it. Unlike Push, the recipient's Source() will be the original sender,
// not the forwarding actor.
func Forward[M Message](ctx *Context, newDst ActorId, msg M) {
	ctx.vcore.sendEvent(ctx.source, newDst, RegisterEventType[M](), msg)
}

// Broadcast enqueues msg to every actor on every core in the Engine,
// including the sender itself. To address only one service across cores,
// or only one core's actors, Push to BroadcastToService or BroadcastToCore
// instead.
func Broadcast[M Message](ctx *Context, msg M) {
	Push(ctx, BroadcastToAll(), msg)
}

// RegisterEvent binds handler as the concrete handler for event type M on
// this actor. Registering the same type twice replaces the prior handler.
// Registrations take effect starting at the next dispatch step; a handler
// that re-registers itself mid-call does not see the new registration for
// the remainder of the event currently being processed.
func RegisterEvent[M Message](ctx *Context, handler func(ctx *Context, msg M)) {
	typeID := RegisterEventType[M]()

	ctx.cell.handlers[typeID] = func(dc *Context, payload any) {
		handler(dc, payload.(M))
	}
}

// UnregisterEvent removes the handler for event type M on this actor, if
// any. Subsequent events of that type are dropped as unhandled.
func UnregisterEvent[M Message](ctx *Context) {
	delete(ctx.cell.handlers, RegisterEventType[M]())
}

// RegisterCallback opts the actor into OnCallback invocation on every
// scheduler tick. Calling it while already registered is a no-op.
func RegisterCallback(ctx *Context) {
	ctx.vcore.callbacks.register(ctx.cell)
}

// UnregisterCallback opts the actor back out. Calling it while not
// registered is a no-op.
func UnregisterCallback(ctx *Context) {
	ctx.vcore.callbacks.unregister(ctx.cell)
}
