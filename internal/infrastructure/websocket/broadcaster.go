package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lllypuk/userdesk/internal/infrastructure/eventbus"
)

// MessageUsersChanged tells a tab to re-request its list partial.
const MessageUsersChanged = "users.changed"

// Subscriber is the part of the event bus the broadcaster needs.
type Subscriber interface {
	Subscribe(eventType string, handler eventbus.Handler) error
}

// Counter is notified for every event forwarded to the hub.
type Counter interface {
	EventReceived()
}

// Broadcaster forwards users.changed events from the bus to every open tab.
type Broadcaster struct {
	hub     *Hub
	logger  *slog.Logger
	counter Counter
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcasterLogger sets the logger for the broadcaster.
func WithBroadcasterLogger(logger *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// WithBroadcasterCounter counts forwarded events.
func WithBroadcasterCounter(counter Counter) BroadcasterOption {
	return func(b *Broadcaster) {
		b.counter = counter
	}
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(hub *Hub, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		hub:    hub,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Attach subscribes the broadcaster to bus. Call it before the bus is started.
func (b *Broadcaster) Attach(bus Subscriber) error {
	if err := bus.Subscribe(eventbus.UsersChanged, b.HandleEvent); err != nil {
		return fmt.Errorf("subscribe to %s: %w", eventbus.UsersChanged, err)
	}
	return nil
}

// HandleEvent pushes a refresh notice for evt to every connected tab.
func (b *Broadcaster) HandleEvent(ctx context.Context, evt eventbus.Event) error {
	data, err := json.Marshal(Message{
		Type: MessageUsersChanged,
		Data: map[string]any{
			"action":  evt.Action,
			"user_id": evt.UserID,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal refresh message: %w", err)
	}

	b.hub.Broadcast(data)
	if b.counter != nil {
		b.counter.EventReceived()
	}

	b.logger.DebugContext(ctx, "refresh broadcast",
		slog.String("event_id", evt.ID),
		slog.String("action", evt.Action),
		slog.String("source", evt.Source),
	)

	return nil
}
