package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(h *Hub, userID string, buffer int) *Client {
	return &Client{hub: h, userID: userID, send: make(chan Event, buffer)}
}

func TestPublishDeliversToRegisteredClients(t *testing.T) {
	h := NewHub(4)
	c1 := testClient(h, "u1", 4)
	c2 := testClient(h, "u1", 4)
	other := testClient(h, "u2", 4)
	h.Register(c1)
	h.Register(c2)
	h.Register(other)

	h.Publish("u1", Event{Type: EventSessionStarted})

	require.Len(t, c1.send, 1)
	require.Len(t, c2.send, 1)
	assert.Empty(t, other.send)

	ev := <-c1.send
	assert.Equal(t, EventSessionStarted, ev.Type)
}

func TestPublishToUnknownUserIsDropped(t *testing.T) {
	h := NewHub(4)
	// Nothing registered; must not panic or block.
	h.Publish("ghost", Event{Type: EventPaymentConfirmed})
	assert.Equal(t, 0, h.ConnectedUsers())
}

func TestPublishNeverBlocksOnFullBuffer(t *testing.T) {
	h := NewHub(1)
	c := testClient(h, "u1", 1)
	h.Register(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			h.Publish("u1", Event{Type: EventSessionEnded})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full client buffer")
	}
	assert.Len(t, c.send, 1, "overflow events are dropped, not queued")
}

func TestUnregisterRemovesClientAndClosesChannel(t *testing.T) {
	h := NewHub(4)
	c := testClient(h, "u1", 4)
	h.Register(c)
	require.Equal(t, 1, h.ConnectedUsers())

	h.Unregister(c)
	assert.Equal(t, 0, h.ConnectedUsers())

	_, open := <-c.send
	assert.False(t, open, "send channel must be closed on unregister")

	// A second unregister for the same client is a no-op.
	h.Unregister(c)
}
