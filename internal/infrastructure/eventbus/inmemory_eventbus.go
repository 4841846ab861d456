package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventBus delivers events within a single process.
type InMemoryEventBus struct {
	opts options

	handlers   map[string][]Handler
	handlersMu sync.RWMutex

	running   bool
	runningMu sync.Mutex
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// NewInMemoryEventBus creates an in-process event bus.
func NewInMemoryEventBus(opts ...Option) *InMemoryEventBus {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &InMemoryEventBus{
		opts:     o,
		handlers: make(map[string][]Handler),
		shutdown: make(chan struct{}),
	}
}

// Publish hands evt to every handler subscribed to its type.
// Handlers run on their own goroutines.
func (b *InMemoryEventBus) Publish(ctx context.Context, evt Event) error {
	if err := validate(evt); err != nil {
		return err
	}
	if evt.Source == "" {
		evt.Source = b.opts.source
	}

	b.handlersMu.RLock()
	handlers := b.handlers[evt.Type]
	b.handlersMu.RUnlock()

	// Handlers outlive the publishing request.
	handlerCtx := context.WithoutCancel(ctx)
	for i, handler := range handlers {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			runHandler(handlerCtx, b.opts.logger, b.opts.retryConfig, handler, evt, i)
		}()
	}

	b.opts.logger.DebugContext(ctx, "event published",
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.Int("handlers", len(handlers)),
	)

	return nil
}

// Subscribe registers handler for eventType.
func (b *InMemoryEventBus) Subscribe(eventType string, handler Handler) error {
	if eventType == "" {
		return ErrEmptyEventType
	}
	if handler == nil {
		return ErrNilHandler
	}

	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Start blocks until ctx is cancelled or Shutdown is called.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.runningMu.Unlock()

	b.opts.logger.InfoContext(ctx, "in-memory event bus started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.shutdown:
		return nil
	}
}

// Shutdown stops the bus and waits for running handlers.
func (b *InMemoryEventBus) Shutdown() error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		b.wg.Wait()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	close(b.shutdown)
	b.wg.Wait()

	return nil
}

// HandlerCount returns the number of handlers registered for an event type.
func (b *InMemoryEventBus) HandlerCount(eventType string) int {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	return len(b.handlers[eventType])
}

var _ Bus = (*InMemoryEventBus)(nil)
