package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorIdBroadcastHelpers(t *testing.T) {
	core := BroadcastToCore(3)
	require.True(t, core.IsBroadcast())
	require.Equal(t, BroadcastService, core.Service)
	require.Equal(t, CoreID(3), core.Core)

	svc := BroadcastToService(7)
	require.True(t, svc.IsBroadcast())
	require.Equal(t, BroadcastCore, svc.Core)
	require.Equal(t, ServiceID(7), svc.Service)

	all := BroadcastToAll()
	require.True(t, all.IsBroadcast())
	require.Equal(t, BroadcastCore, all.Core)
	require.Equal(t, BroadcastService, all.Service)
}

func TestActorIdNotBroadcast(t *testing.T) {
	id := ActorId{Core: 1, Service: 2}
	require.False(t, id.IsBroadcast())
	require.Equal(t, "1:2", id.String())
}

func TestActorIdStringVariants(t *testing.T) {
	require.Equal(t, "broadcast(all-cores,all-services)", BroadcastToAll().String())
	require.Equal(t, "broadcast(all-cores,service=5)", BroadcastToService(5).String())
	require.Equal(t, "broadcast(core=2,all-services)", BroadcastToCore(2).String())
}
