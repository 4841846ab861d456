package eventbus

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// New builds the bus named by busType ("redis" or "inmemory").
// client is only used by the redis bus.
func New(busType string, client *redis.Client, opts ...Option) (Bus, error) {
	switch strings.ToLower(busType) {
	case "inmemory":
		return NewInMemoryEventBus(opts...), nil
	case "redis":
		return NewRedisEventBus(client, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBusType, busType)
	}
}
