package core

import "fmt"

// CoreID identifies one VirtualCore within an Engine. Core ids are assigned
// by the operator when registering actor factories and are dense small
// integers indexing directly into the Engine's slice of cores.
type CoreID uint16

// BroadcastCore is a reserved CoreID meaning "every core the Engine owns".
// It is only ever used as the CoreID half of a destination ActorId, never as
// the CoreID of a live actor.
const BroadcastCore CoreID = ^CoreID(0)

// ServiceID identifies an actor within the core it lives on. ServiceID 0 is
// reserved: combined with any CoreID it means "every actor local to that
// core". ServiceID values are handed out by the owning VirtualCore in
// registration order starting at 1.
type ServiceID uint16

// BroadcastService is the reserved ServiceID meaning "every actor on the
// addressed core(s)".
const BroadcastService ServiceID = 0

// ActorId is the compact, copyable address of an actor. It is a value type:
// passing it around never reaches across cores, only events carry it.
//
// An ActorId issued by a VirtualCore refers to at most one live actor during
// the lifetime of that id; the owning core never reuses a ServiceID while an
// event addressed to it may still be in flight.
type ActorId struct {
	Service ServiceID
	Core    CoreID
}

// String renders the id as "core:service" for logging.
func (id ActorId) String() string {
	switch {
	case id.Core == BroadcastCore && id.Service == BroadcastService:
		return "broadcast(all-cores,all-services)"
	case id.Core == BroadcastCore:
		return fmt.Sprintf("broadcast(all-cores,service=%d)", id.Service)
	case id.Service == BroadcastService:
		return fmt.Sprintf("broadcast(core=%d,all-services)", id.Core)
	default:
		return fmt.Sprintf("%d:%d", id.Core, id.Service)
	}
}

// IsBroadcast reports whether this id addresses more than one actor.
func (id ActorId) IsBroadcast() bool {
	return id.Core == BroadcastCore || id.Service == BroadcastService
}

// BroadcastToCore returns the id addressing every actor local to core.
func BroadcastToCore(core CoreID) ActorId {
	return ActorId{Service: BroadcastService, Core: core}
}

// BroadcastToService returns the id addressing the given service on every
// core in the Engine.
func BroadcastToService(service ServiceID) ActorId {
	return ActorId{Service: service, Core: BroadcastCore}
}

// BroadcastToAll returns the id addressing every actor in the Engine.
func BroadcastToAll() ActorId {
	return ActorId{Service: BroadcastService, Core: BroadcastCore}
}
