package eventbus

import (
	"context"
	"log/slog"
	"time"
)

// Default retry configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
)

// RetryConfig configures retry behavior for event handling.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
	}
}

// runHandler calls handler until it succeeds or retries are exhausted.
func runHandler(
	ctx context.Context,
	logger *slog.Logger,
	cfg RetryConfig,
	handler Handler,
	evt Event,
	handlerIndex int,
) {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				logger.WarnContext(ctx, "handler retry cancelled",
					slog.String("event_type", evt.Type),
					slog.String("error", ctx.Err().Error()),
				)
				return
			case <-time.After(backoff):
			}

			backoff = min(time.Duration(float64(backoff)*cfg.BackoffFactor), cfg.MaxBackoff)
		}

		if err := handler(ctx, evt); err != nil {
			lastErr = err
			logger.WarnContext(ctx, "event handler failed",
				slog.String("event_type", evt.Type),
				slog.Int("handler_index", handlerIndex),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		return
	}

	logger.ErrorContext(ctx, "event handler failed after all retries",
		slog.String("event_id", evt.ID),
		slog.String("event_type", evt.Type),
		slog.Int("handler_index", handlerIndex),
		slog.Int("max_retries", cfg.MaxRetries),
		slog.String("error", lastErr.Error()),
	)
}
