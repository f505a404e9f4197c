package services

import (
	"testing"

	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func drain(c *ClientConnection) []WebSocketMessage {
	var msgs []WebSocketMessage
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestHubEmitReachesEveryView(t *testing.T) {
	hub := NewWebSocketHub(zaptest.NewLogger(t))
	main1 := NewClientConnection("c1", "main", nil)
	main2 := NewClientConnection("c2", "main", nil)
	settings := NewClientConnection("c3", "settings", nil)
	for _, c := range []*ClientConnection{main1, main2, settings} {
		assert.NilError(t, hub.Register(c))
	}

	assert.NilError(t, hub.Emit("process-status", map[string]int{"id": 1}))

	for _, c := range []*ClientConnection{main1, main2, settings} {
		msgs := drain(c)
		assert.Assert(t, is.Len(msgs, 1))
		assert.Check(t, is.Equal(msgs[0].Type, MessageEvent))
		assert.Check(t, is.Equal(msgs[0].Event, "process-status"))
		assert.Check(t, !msgs[0].Timestamp.IsZero())
	}
	assert.Check(t, is.DeepEqual(hub.Views(), []string{"main", "settings"}))
	assert.Check(t, is.Equal(hub.ConnectionCount(), 3))
}

func TestHubEmitWithoutListeners(t *testing.T) {
	hub := NewWebSocketHub(zaptest.NewLogger(t))
	assert.NilError(t, hub.Emit("process-status", nil))
}

func TestHubEmitToScopesByView(t *testing.T) {
	hub := NewWebSocketHub(zaptest.NewLogger(t))
	main := NewClientConnection("c1", "main", nil)
	settings := NewClientConnection("c2", "settings", nil)
	assert.NilError(t, hub.Register(main))
	assert.NilError(t, hub.Register(settings))

	assert.NilError(t, hub.EmitTo("settings", "window-process-status", 1))
	assert.Check(t, is.Len(drain(main), 0))
	assert.Check(t, is.Len(drain(settings), 1))

	err := hub.EmitTo("missing", "window-process-status", 1)
	assert.Check(t, is.ErrorIs(err, ErrViewNotConnected))
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	hub := NewWebSocketHub(zaptest.NewLogger(t))
	c := NewClientConnection("c1", "main", nil)
	assert.NilError(t, hub.Register(c))

	for i := 0; i < clientSendQueueSize+10; i++ {
		assert.NilError(t, hub.Emit("tick", i))
	}
	assert.Check(t, is.Len(drain(c), clientSendQueueSize))
	assert.Check(t, hub.SendMessage("c1", WebSocketMessage{Type: MessagePong}))
}

func TestHubUnregisterClosesQueue(t *testing.T) {
	hub := NewWebSocketHub(zaptest.NewLogger(t))
	c := NewClientConnection("c1", "main", nil)
	assert.NilError(t, hub.Register(c))

	hub.Unregister("c1")
	hub.Unregister("c1")

	_, ok := <-c.Send
	assert.Check(t, !ok)
	assert.Check(t, !hub.SendMessage("c1", WebSocketMessage{Type: MessagePong}))
	assert.Check(t, is.ErrorIs(hub.EmitTo("main", "x", nil), ErrViewNotConnected))
}

func TestHubShutdown(t *testing.T) {
	hub := NewWebSocketHub(zaptest.NewLogger(t))
	c := NewClientConnection("c1", "main", nil)
	assert.NilError(t, hub.Register(c))

	hub.Shutdown()
	hub.Shutdown()

	_, ok := <-c.Send
	assert.Check(t, !ok)
	assert.Check(t, is.ErrorIs(hub.Emit("x", nil), ErrHubClosed))
	assert.Check(t, is.ErrorIs(hub.Register(NewClientConnection("c2", "main", nil)), ErrHubClosed))
	hub.Unregister("c1")
}
