package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/userdesk/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Logger is the structured logger for router events.
	Logger *slog.Logger

	// SessionMiddleware binds a browser session to console routes.
	SessionMiddleware echo.MiddlewareFunc

	// OperatorMiddleware reads the operator identity set by a fronting proxy.
	OperatorMiddleware echo.MiddlewareFunc

	// MutationMiddleware wraps the routes that change backend records.
	MutationMiddleware echo.MiddlewareFunc

	// CORSConfig is the CORS configuration.
	CORSConfig middleware.CORSConfig

	// LoggingConfig is the logging middleware configuration.
	LoggingConfig middleware.LoggingConfig

	// RecoveryConfig is the recovery middleware configuration.
	RecoveryConfig middleware.RecoveryConfig

	// PartialsPrefix is the prefix for htmx partial routes.
	// Default is "/partials".
	PartialsPrefix string
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:         slog.Default(),
		CORSConfig:     middleware.DefaultCORSConfig(),
		LoggingConfig:  middleware.DefaultLoggingConfig(),
		RecoveryConfig: middleware.DefaultRecoveryConfig(),
		PartialsPrefix: "/partials",
	}
}

// Router manages HTTP route groups and middleware chains.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger

	// Route groups
	console   *echo.Group
	partials  *echo.Group
	mutations *echo.Group
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PartialsPrefix == "" {
		config.PartialsPrefix = "/partials"
	}

	r := &Router{
		echo:   e,
		config: config,
		logger: config.Logger,
	}

	r.setupGlobalMiddleware()
	r.setupRouteGroups()

	return r
}

// setupGlobalMiddleware applies global middleware to the Echo instance.
func (r *Router) setupGlobalMiddleware() {
	// Recovery middleware (must be first to catch all panics)
	r.echo.Use(middleware.RecoveryWithConfig(r.config.RecoveryConfig))

	r.echo.Use(middleware.CORS(r.config.CORSConfig))

	// Session runs before logging so request logs carry the session id.
	if r.config.SessionMiddleware != nil {
		r.echo.Use(r.config.SessionMiddleware)
	} else {
		r.logger.Warn("no session middleware configured, console routes have no list state")
	}

	r.echo.Use(middleware.Logging(r.config.LoggingConfig))

	if r.config.OperatorMiddleware != nil {
		r.echo.Use(r.config.OperatorMiddleware)
	}
}

// setupRouteGroups creates the route group hierarchy.
func (r *Router) setupRouteGroups() {
	r.console = r.echo.Group("")
	r.partials = r.echo.Group(r.config.PartialsPrefix)

	if r.config.MutationMiddleware != nil {
		r.mutations = r.console.Group("", r.config.MutationMiddleware)
	} else {
		r.mutations = r.console
	}
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// Console returns the group for full console pages.
func (r *Router) Console() *echo.Group {
	return r.console
}

// Partials returns the group for htmx partial fragments.
func (r *Router) Partials() *echo.Group {
	return r.partials
}

// Mutations returns the group for routes that create, update or delete records.
func (r *Router) Mutations() *echo.Group {
	return r.mutations
}

// RouteRegistrar defines the interface for registering routes.
type RouteRegistrar interface {
	RegisterRoutes(r *Router)
}

// RegisterAll registers all route registrars with the router.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r)
	}
}

// PrintRoutes logs all registered routes (for debugging).
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
			slog.String("name", route.Name),
		)
	}
}

// RegisterMetricsEndpoint registers the Prometheus metrics endpoint for gatherer.
// A nil gatherer serves the default registry.
func (r *Router) RegisterMetricsEndpoint(gatherer prometheus.Gatherer) {
	if gatherer == nil {
		r.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
		return
	}
	r.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
