// Package eventbus carries change notifications between console instances.
package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UsersChanged is published after any successful create, update or delete.
const UsersChanged = "users.changed"

// Actions carried by a UsersChanged event.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Bus errors.
var (
	ErrEmptyEventType = errors.New("event type cannot be empty")
	ErrNilHandler     = errors.New("handler cannot be nil")
	ErrAlreadyRunning = errors.New("event bus is already running")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrUnknownBusType = errors.New("unknown event bus type")
	ErrNoRedisClient  = errors.New("redis event bus requires a client")
)

// Event is a change notification.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Action     string    `json:"action,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewUsersChanged builds a UsersChanged event for the given mutation.
func NewUsersChanged(action string, userID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       UsersChanged,
		Action:     action,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Handler handles one event.
type Handler func(ctx context.Context, evt Event) error

// Bus publishes events and delivers them to subscribed handlers.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(eventType string, handler Handler) error
	Start(ctx context.Context) error
	Shutdown() error
}

func validate(evt Event) error {
	if evt.Type == "" {
		return ErrInvalidEvent
	}
	return nil
}
