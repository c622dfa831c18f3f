package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pingMsg struct {
	BaseMessage
	N int
}

func (pingMsg) MessageType() string { return "test.Ping" }

type pongMsg struct {
	BaseMessage
}

func (pongMsg) MessageType() string { return "test.Pong" }

func TestRegisterEventTypeIsStableAndIdempotent(t *testing.T) {
	id1 := RegisterEventType[pingMsg]()
	id2 := RegisterEventType[pingMsg]()
	require.Equal(t, id1, id2)

	otherID := RegisterEventType[pongMsg]()
	require.NotEqual(t, id1, otherID)
}

func TestRegisterEventTypeNeverReservedZero(t *testing.T) {
	id := RegisterEventType[pingMsg]()
	require.NotZero(t, id)
}

func TestKillMsgRegistered(t *testing.T) {
	require.NotZero(t, killEventType)
	require.Equal(t, "core.Kill", KillMsg{}.MessageType())
}
