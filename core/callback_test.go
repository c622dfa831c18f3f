package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallbackSetRegisterIsIdempotent(t *testing.T) {
	var s callbackSet
	cell := &actorCell{id: ActorId{Core: 0, Service: 1}}

	s.register(cell)
	s.register(cell)

	require.Len(t, s.order, 1)
	require.True(t, cell.callbackRegistered)
}

func TestCallbackSetUnregisterUnknownIsNoOp(t *testing.T) {
	var s callbackSet
	cell := &actorCell{id: ActorId{Core: 0, Service: 1}}

	s.unregister(cell)
	require.Empty(t, s.order)

	s.register(cell)
	s.unregister(cell)
	s.unregister(cell)

	require.Empty(t, s.order)
	require.False(t, cell.callbackRegistered)
}

func TestCallbackSetSweepDropsTerminatedCells(t *testing.T) {
	var s callbackSet
	live := &actorCell{id: ActorId{Core: 0, Service: 1}}
	dying := &actorCell{id: ActorId{Core: 0, Service: 2}}

	s.register(live)
	s.register(dying)
	dying.terminating = true

	s.sweep()

	require.Len(t, s.order, 1)
	require.Equal(t, live, s.order[0])
}
