// Package main provides the console server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/userdesk/internal/config"
	httphandler "github.com/lllypuk/userdesk/internal/handler/http"
	wshandler "github.com/lllypuk/userdesk/internal/handler/websocket"
	"github.com/lllypuk/userdesk/internal/infrastructure/eventbus"
	"github.com/lllypuk/userdesk/internal/infrastructure/httpserver"
	"github.com/lllypuk/userdesk/internal/infrastructure/metrics"
	"github.com/lllypuk/userdesk/internal/infrastructure/websocket"
	"github.com/lllypuk/userdesk/internal/listview"
	"github.com/lllypuk/userdesk/internal/middleware"
	"github.com/lllypuk/userdesk/internal/session"
	"github.com/lllypuk/userdesk/internal/userapi"
	"github.com/lllypuk/userdesk/web"
)

// Container initialization timeouts.
const (
	containerInitTimeout = 30 * time.Second
	redisPingTimeout     = 5 * time.Second
)

// Container holds all application dependencies and manages their lifecycle.
// It implements httpserver.HealthChecker for unified health endpoint support.
type Container struct {
	// Configuration
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	Redis          *redis.Client
	ownsRedis      bool
	Metrics        *metrics.ConsoleMetrics
	Registry       *prometheus.Registry
	EventBus       eventbus.Bus
	Hub            *websocket.Hub
	Broadcaster    *websocket.Broadcaster
	RateLimitStore middleware.RateLimitStore

	// Backend and browser state
	Users    *userapi.Client
	Sessions *session.Registry

	// Health
	Probes *httpserver.ProbeChecker

	// Template Rendering
	TemplateRenderer *httphandler.TemplateRenderer
	TemplateHandler  *httphandler.TemplateHandler
	UsersHandler     *httphandler.UsersTemplateHandler
	WSHandler        *wshandler.Handler
}

// Ensure Container implements httpserver.HealthChecker.
var _ httpserver.HealthChecker = (*Container)(nil)

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// WithRedis injects an existing Redis client. The container will not close it.
func WithRedis(client *redis.Client) ContainerOption {
	return func(c *Container) {
		c.Redis = client
	}
}

// NewContainer creates a new dependency injection container.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Logger.Info("building console container",
		slog.String("eventbus", cfg.EventBus.Type),
		slog.Bool("rate_limit", cfg.RateLimit.Enabled),
		slog.Bool("is_development", cfg.IsDevelopment()),
	)

	c.setupMetrics()

	if err := c.setupInfrastructure(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	if err := c.setupUsersClient(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup users client: %w", err)
	}

	c.setupSessions()

	if err := c.setupTemplateRenderer(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup template renderer: %w", err)
	}

	c.setupHTTPHandlers()
	c.setupProbes()

	if err := c.validateWiring(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wiring validation failed: %w", err)
	}

	return c, nil
}

// validateWiring ensures all required dependencies are properly initialized.
func (c *Container) validateWiring() error {
	var errs []error

	if c.EventBus == nil {
		errs = append(errs, errors.New("event bus not initialized"))
	}
	if c.Hub == nil {
		errs = append(errs, errors.New("websocket hub not initialized"))
	}
	if c.Users == nil {
		errs = append(errs, errors.New("users client not initialized"))
	}
	if c.Sessions == nil {
		errs = append(errs, errors.New("session registry not initialized"))
	}
	if c.UsersHandler == nil || c.TemplateHandler == nil || c.WSHandler == nil {
		errs = append(errs, errors.New("http handlers not initialized"))
	}
	if c.Config.EventBus.UsesRedis() && c.Redis == nil {
		errs = append(errs, errors.New("redis client not initialized"))
	}

	return errors.Join(errs...)
}

// setupMetrics creates a dedicated Prometheus registry with the console metrics
// and the Go runtime collectors.
func (c *Container) setupMetrics() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewConsoleMetrics(c.Registry)
}

// setupInfrastructure initializes Redis (when needed), the event bus, the hub and the broadcaster.
func (c *Container) setupInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	if c.Config.EventBus.UsesRedis() {
		if err := c.setupRedis(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if err := c.setupEventBus(); err != nil {
		return fmt.Errorf("event bus: %w", err)
	}

	c.setupHub()

	if err := c.setupBroadcaster(); err != nil {
		return fmt.Errorf("broadcaster: %w", err)
	}

	c.setupRateLimitStore()

	return nil
}

// setupRedis initializes the Redis client.
func (c *Container) setupRedis(ctx context.Context) error {
	if c.Redis == nil {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
			PoolSize: c.Config.Redis.PoolSize,
		})
		c.ownsRedis = true
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to Redis",
		slog.String("addr", c.Redis.Options().Addr),
	)

	return nil
}

// setupEventBus initializes the change notification bus.
func (c *Container) setupEventBus() error {
	bus, err := eventbus.New(c.Config.EventBus.Type, c.Redis,
		eventbus.WithLogger(c.Logger),
		eventbus.WithChannelPrefix(c.Config.EventBus.RedisChannelPrefix),
		eventbus.WithSource(instanceName(c.Config.App.Name)),
	)
	if err != nil {
		return err
	}
	c.EventBus = bus

	c.Logger.Debug("event bus initialized",
		slog.String("type", c.Config.EventBus.Type),
		slog.String("prefix", c.Config.EventBus.RedisChannelPrefix),
	)
	return nil
}

// setupHub initializes the WebSocket hub.
func (c *Container) setupHub() {
	c.Hub = websocket.NewHub(
		websocket.WithHubLogger(c.Logger),
		websocket.WithHubGauge(c.Metrics.WebSocketClients),
	)

	c.Logger.Debug("websocket hub initialized")
}

// setupBroadcaster subscribes the hub to change events. It must run before the bus starts.
func (c *Container) setupBroadcaster() error {
	c.Broadcaster = websocket.NewBroadcaster(
		c.Hub,
		websocket.WithBroadcasterLogger(c.Logger),
		websocket.WithBroadcasterCounter(c.Metrics),
	)

	return c.Broadcaster.Attach(c.EventBus)
}

// setupRateLimitStore shares counters through Redis when it is available.
func (c *Container) setupRateLimitStore() {
	if !c.Config.RateLimit.Enabled {
		c.Logger.Debug("mutation rate limit disabled by configuration")
		return
	}

	if c.Redis != nil {
		c.RateLimitStore = middleware.NewRedisRateLimitStore(c.Redis, c.Config.EventBus.RedisChannelPrefix+"ratelimit:")
		return
	}
	c.RateLimitStore = middleware.NewMemoryRateLimitStore()
}

// setupUsersClient initializes the backend client.
func (c *Container) setupUsersClient() error {
	client, err := userapi.NewClient(userapi.Config{
		BaseURL:    c.Config.API.BaseURL,
		Origin:     c.Config.API.Origin,
		HTTPClient: &http.Client{Timeout: c.Config.API.Timeout},
		Recorder:   c.Metrics,
	})
	if err != nil {
		return err
	}
	c.Users = client

	c.Logger.Info("users backend configured", slog.String("base_url", client.BaseURL()))
	return nil
}

// setupSessions initializes the per-browser list state registry.
func (c *Container) setupSessions() {
	c.Sessions = session.NewRegistry(
		func() *listview.Controller {
			return listview.New(c.Users, listview.WithLogger(c.Logger))
		},
		session.WithIdleTTL(c.Config.Session.IdleTTL),
		session.WithMaxScreens(c.Config.Session.MaxScreens),
		session.WithLogger(c.Logger),
		session.WithGauge(c.Metrics.ActiveSessions),
	)
}

// setupTemplateRenderer initializes the HTML template renderer.
func (c *Container) setupTemplateRenderer() error {
	renderer, err := httphandler.NewTemplateRenderer(httphandler.TemplateRendererConfig{
		FS:      web.TemplatesFS,
		Logger:  c.Logger,
		DevMode: false,
	})
	if err != nil {
		return err
	}
	c.TemplateRenderer = renderer

	c.Logger.Debug("template renderer initialized")
	return nil
}

// setupHTTPHandlers initializes the page, users and websocket handlers.
func (c *Container) setupHTTPHandlers() {
	pages := httphandler.PagesConfig{
		Renderer: c.TemplateRenderer,
		AppName:  c.Config.App.Name,
		Logger:   c.Logger,
	}

	c.TemplateHandler = httphandler.NewTemplateHandler(pages, c.Users.BaseURL())
	c.UsersHandler = httphandler.NewUsersTemplateHandler(pages, c.Users,
		httphandler.WithPublisher(c.EventBus),
		httphandler.WithPublishCounter(c.Metrics),
	)

	wsCfg := c.Config.WebSocket
	c.WSHandler = wshandler.NewHandler(c.Hub,
		wshandler.WithHandlerConfig(wshandler.HandlerConfig{
			ReadBufferSize:  wsCfg.ReadBufferSize,
			WriteBufferSize: wsCfg.WriteBufferSize,
			Logger:          c.Logger,
			ClientConfig: websocket.ClientConfig{
				PingInterval:   wsCfg.PingInterval,
				PongWait:       wsCfg.PongTimeout,
				WriteWait:      websocket.DefaultClientConfig().WriteWait,
				MaxMessageSize: websocket.DefaultClientConfig().MaxMessageSize,
			},
		}),
	)
}

// setupProbes builds the readiness probes: the users backend, Redis when used, and the hub.
func (c *Container) setupProbes() {
	probes := []httpserver.Probe{
		{
			Name:     "users_api",
			Critical: true,
			Check: func(ctx context.Context) error {
				_, err := c.Users.ListUsers(ctx, 0, listview.SizeOptions[0], "")
				return err
			},
		},
		{
			Name: "websocket_hub",
			Check: func(context.Context) error {
				if !c.Hub.IsRunning() {
					return errors.New("hub is not running")
				}
				return nil
			},
		},
	}

	if c.Redis != nil {
		probes = append(probes, httpserver.Probe{
			Name:     "redis",
			Critical: true,
			Check: func(ctx context.Context) error {
				return c.Redis.Ping(ctx).Err()
			},
		})
	}

	c.Probes = httpserver.NewProbeChecker(httpserver.DefaultProbeTimeout, probes...)
}

// StartEventBus starts the event bus.
// This should be called before the HTTP server starts accepting requests.
func (c *Container) StartEventBus(ctx context.Context) {
	go func() {
		if err := c.EventBus.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Error("event bus error", slog.String("error", err.Error()))
		}
	}()

	c.Logger.InfoContext(ctx, "event bus started")
}

// StartHub starts the WebSocket hub.
func (c *Container) StartHub(ctx context.Context) {
	go c.Hub.Run(ctx)
	c.Logger.InfoContext(ctx, "websocket hub started")
}

// StartSessionSweeper evicts idle browser sessions until ctx is done.
func (c *Container) StartSessionSweeper(ctx context.Context) {
	go c.Sessions.Run(ctx, c.Config.Session.SweepInterval)
	c.Logger.InfoContext(ctx, "session sweeper started",
		slog.Duration("idle_ttl", c.Config.Session.IdleTTL),
	)
}

// Close releases all container resources.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error

	// Close Hub
	if c.Hub != nil {
		c.Hub.Stop()
		c.Logger.Debug("websocket hub stopped")
	}

	// Close EventBus
	if c.EventBus != nil {
		if err := c.EventBus.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("event bus shutdown: %w", err))
		} else {
			c.Logger.Debug("event bus stopped")
		}
	}

	// Close Redis
	if c.Redis != nil && c.ownsRedis {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		} else {
			c.Logger.Debug("redis connection closed")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}

// IsReady implements httpserver.HealthChecker.
func (c *Container) IsReady(ctx context.Context) bool {
	if c.Probes == nil {
		return false
	}
	return c.Probes.IsReady(ctx)
}

// GetHealthStatus implements httpserver.HealthChecker.
func (c *Container) GetHealthStatus(ctx context.Context) []httpserver.ComponentStatus {
	if c.Probes == nil {
		return []httpserver.ComponentStatus{{
			Name:    "container",
			Status:  httpserver.StatusUnhealthy,
			Message: "not initialized",
		}}
	}
	return c.Probes.GetHealthStatus(ctx)
}

// instanceName identifies this replica in published events.
func instanceName(app string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return app
	}
	return app + "@" + host
}
