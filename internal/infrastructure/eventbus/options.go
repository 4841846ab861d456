package eventbus

import "log/slog"

const defaultChannelPrefix = "userdesk:"

type options struct {
	logger        *slog.Logger
	retryConfig   RetryConfig
	channelPrefix string
	source        string
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		retryConfig:   DefaultRetryConfig(),
		channelPrefix: defaultChannelPrefix,
	}
}

// Option configures an event bus.
type Option func(*options)

// WithLogger sets the logger for the event bus.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetryConfig sets the retry configuration for event handling.
func WithRetryConfig(config RetryConfig) Option {
	return func(o *options) {
		o.retryConfig = config
	}
}

// WithChannelPrefix sets a prefix for Redis channel names.
func WithChannelPrefix(prefix string) Option {
	return func(o *options) {
		o.channelPrefix = prefix
	}
}

// WithSource stamps published events that carry no source with name.
func WithSource(name string) Option {
	return func(o *options) {
		o.source = name
	}
}
