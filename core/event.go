package core

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// EventTypeID is the stable runtime identity of an event type. Rather than
// the template-instantiated static dispatch the original C++ qb framework
// relies on, each VirtualCore here holds a table indexed by EventTypeID that
// maps to a type-erased handler thunk: registration happens once per type
// (via RegisterEventType) and costs an index-and-call from then on.
type EventTypeID uint32

// BaseMessage is embedded by every concrete event type to satisfy the sealed
// Message interface. Types outside this package cannot implement Message
// without embedding BaseMessage, which keeps the set of event shapes
// inspectable and prevents accidental cross-package event definitions that
// forget to declare a MessageType.
type BaseMessage struct{}

func (BaseMessage) messageMarker() {}

// Message is the sealed interface every event payload must satisfy.
type Message interface {
	messageMarker()

	// MessageType returns a human-readable name used in logs and metrics.
	// It is not the wire identity (that's EventTypeID); two distinct Go
	// types are free to return the same string.
	MessageType() string
}

var (
	typeRegistryMu sync.RWMutex
	typeRegistry   = make(map[reflect.Type]EventTypeID)
	nextTypeID     atomic.Uint32
)

// RegisterEventType returns the stable EventTypeID for M, assigning a fresh
// one the first time M is seen. Calling it again for the same M always
// returns the same id: registration is idempotent. Id 0 is never assigned to
// a user type; it is reserved to mean "unset".
func RegisterEventType[M Message]() EventTypeID {
	var zero M
	t := reflect.TypeOf(&zero).Elem()

	typeRegistryMu.RLock()
	id, ok := typeRegistry[t]
	typeRegistryMu.RUnlock()
	if ok {
		return id
	}

	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()

	if id, ok := typeRegistry[t]; ok {
		return id
	}

	id = EventTypeID(nextTypeID.Add(1))
	typeRegistry[t] = id

	return id
}

// eventHeader is the fixed-size portion of an event frame: type identity,
// source/destination addressing, and the liveness flags the mailbox fabric
// uses to silently drop events addressed to actors that are no longer
// alive.
type eventHeader struct {
	typeID      EventTypeID
	source      ActorId
	destination ActorId

	// alive records the producer-side liveness of the destination at
	// enqueue time. It is advisory only -- dispatch never consults it,
	// because the consuming core's own cell table is the authoritative
	// liveness check and a producer-side snapshot can be stale. It is
	// kept for wire-model fidelity and as a diagnostic for tests.
	alive bool

	// isLive marks a frame whose payload owns resources that must be
	// released when the frame is consumed, win or lose. In this Go port
	// that is handled by the garbage collector, so nothing reads it;
	// it exists purely to preserve the field in the wire model for
	// callers porting protocol-level code from the original qb
	// framework.
	isLive bool
}

// frame is one event as it sits in a mailbox: a header plus a type-erased
// payload. Rather than hand-packing the payload into a byte slice (the
// C++ original relies on placement-new into a preallocated arena), frames
// here carry the payload as `any`; the SPSC ring still enforces the same
// single-producer/single-consumer discipline and backpressure, just over
// frame-shaped slots instead of raw bytes. See DESIGN.md for the
// rationale.
type frame struct {
	eventHeader
	payload any
}

// handlerThunk is a type-erased event handler bound to one actor. It is
// produced by RegisterEvent and invoked by the owning VirtualCore during
// dispatch.
type handlerThunk func(dispatchCtx *Context, payload any)

// KillMsg is delivered to an actor to ask it to terminate. Every actor
// implicitly handles it by calling Kill() unless the actor registers its own
// handler via RegisterEvent[KillMsg], in which case the user handler is
// responsible for calling Kill() (or not, if it wants to keep living).
type KillMsg struct {
	BaseMessage

	// Reason is an optional human-readable explanation, useful for logs.
	Reason string
}

// MessageType implements Message.
func (KillMsg) MessageType() string { return "core.Kill" }

// killEventType is resolved once at package init so the scheduler can
// recognize the default-kill fast path without a map lookup per dispatch.
var killEventType = RegisterEventType[KillMsg]()
