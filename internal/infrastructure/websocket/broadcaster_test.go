package websocket_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lllypuk/userdesk/internal/infrastructure/eventbus"
	ws "github.com/lllypuk/userdesk/internal/infrastructure/websocket"
	"github.com/stretchr/testify/require"
)

type countingCounter struct {
	n atomic.Int32
}

func (c *countingCounter) EventReceived() { c.n.Add(1) }

func TestBroadcaster_ForwardsUsersChanged(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run(t.Context())

	client, received := createTestClientWithChannel(t, hub, "session-1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	counter := &countingCounter{}
	bus := eventbus.NewInMemoryEventBus()
	broadcaster := ws.NewBroadcaster(hub, ws.WithBroadcasterCounter(counter))
	require.NoError(t, broadcaster.Attach(bus))

	require.NoError(t, bus.Publish(context.Background(), eventbus.NewUsersChanged(eventbus.ActionDeleted, 7)))

	assertReceived(t, received, []byte(`{"type":"users.changed","data":{"action":"deleted","user_id":7}}`))
	require.Eventually(t, func() bool { return counter.n.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_IgnoresOtherEvents(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run(t.Context())

	client, received := createTestClientWithChannel(t, hub, "session-1")
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	bus := eventbus.NewInMemoryEventBus()
	require.NoError(t, ws.NewBroadcaster(hub).Attach(bus))

	require.NoError(t, bus.Publish(context.Background(), eventbus.Event{ID: "x", Type: "something.else"}))

	assertNotReceived(t, received)
}
