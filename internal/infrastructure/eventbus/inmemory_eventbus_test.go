package eventbus_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lllypuk/userdesk/internal/infrastructure/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() eventbus.RetryConfig {
	return eventbus.RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestNewUsersChanged(t *testing.T) {
	evt := eventbus.NewUsersChanged(eventbus.ActionDeleted, 12)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, eventbus.UsersChanged, evt.Type)
	assert.Equal(t, eventbus.ActionDeleted, evt.Action)
	assert.Equal(t, int64(12), evt.UserID)
	assert.False(t, evt.OccurredAt.IsZero())
}

func TestInMemoryEventBus_Subscribe(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus()
	noop := func(context.Context, eventbus.Event) error { return nil }

	require.NoError(t, bus.Subscribe(eventbus.UsersChanged, noop))
	require.NoError(t, bus.Subscribe(eventbus.UsersChanged, noop))
	assert.Equal(t, 2, bus.HandlerCount(eventbus.UsersChanged))

	require.ErrorIs(t, bus.Subscribe("", noop), eventbus.ErrEmptyEventType)
	require.ErrorIs(t, bus.Subscribe(eventbus.UsersChanged, nil), eventbus.ErrNilHandler)
}

func TestInMemoryEventBus_PublishDelivers(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(eventbus.WithSource("console-a"))

	received := make(chan eventbus.Event, 1)
	require.NoError(t, bus.Subscribe(eventbus.UsersChanged, func(_ context.Context, evt eventbus.Event) error {
		received <- evt
		return nil
	}))

	sent := eventbus.NewUsersChanged(eventbus.ActionCreated, 3)
	require.NoError(t, bus.Publish(context.Background(), sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "console-a", got.Source)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	require.NoError(t, bus.Shutdown())
}

func TestInMemoryEventBus_HandlerOutlivesRequestContext(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus()

	done := make(chan error, 1)
	require.NoError(t, bus.Subscribe(eventbus.UsersChanged, func(ctx context.Context, _ eventbus.Event) error {
		done <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, eventbus.NewUsersChanged(eventbus.ActionUpdated, 1)))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestInMemoryEventBus_RejectsUntypedEvent(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus()
	require.ErrorIs(t, bus.Publish(context.Background(), eventbus.Event{}), eventbus.ErrInvalidEvent)
}

func TestInMemoryEventBus_RetriesFailingHandler(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(eventbus.WithRetryConfig(fastRetry()))

	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(eventbus.UsersChanged, func(context.Context, eventbus.Event) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), eventbus.NewUsersChanged(eventbus.ActionCreated, 1)))
	require.NoError(t, bus.Shutdown())

	assert.Equal(t, int32(3), calls.Load())
}

func TestInMemoryEventBus_GivesUpAfterMaxRetries(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus(eventbus.WithRetryConfig(fastRetry()))

	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(eventbus.UsersChanged, func(context.Context, eventbus.Event) error {
		calls.Add(1)
		return errors.New("permanent")
	}))

	require.NoError(t, bus.Publish(context.Background(), eventbus.NewUsersChanged(eventbus.ActionCreated, 1)))
	require.NoError(t, bus.Shutdown())

	assert.Equal(t, int32(3), calls.Load())
}

func TestInMemoryEventBus_StartAndShutdown(t *testing.T) {
	bus := eventbus.NewInMemoryEventBus()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bus.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return errors.Is(bus.Start(context.Background()), eventbus.ErrAlreadyRunning)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Shutdown())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestNew(t *testing.T) {
	bus, err := eventbus.New("INMEMORY", nil)
	require.NoError(t, err)
	assert.IsType(t, &eventbus.InMemoryEventBus{}, bus)

	_, err = eventbus.New("redis", nil)
	require.ErrorIs(t, err, eventbus.ErrNoRedisClient)

	_, err = eventbus.New("kafka", nil)
	require.ErrorIs(t, err, eventbus.ErrUnknownBusType)
}
