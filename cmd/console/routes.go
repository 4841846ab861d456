package main

import (
	"github.com/labstack/echo/v4"

	httphandler "github.com/lllypuk/userdesk/internal/handler/http"
	"github.com/lllypuk/userdesk/internal/infrastructure/httpserver"
	"github.com/lllypuk/userdesk/internal/middleware"
	"github.com/lllypuk/userdesk/web"
)

// probePaths never get a browser session.
var probePaths = []string{"/health", "/ready", "/health/details", "/metrics"}

// staticPrefix serves embedded assets, which need no session either.
const staticPrefix = "/static/"

// SetupRoutes configures all console routes and middleware chains on e.
func SetupRoutes(e *echo.Echo, c *Container) *httpserver.Router {
	routerConfig := httpserver.DefaultRouterConfig()
	routerConfig.Logger = c.Logger
	routerConfig.SessionMiddleware = middleware.Session(middleware.SessionConfig{
		Resolver:     c.Sessions,
		CookieName:   c.Config.Session.CookieName,
		Secure:       c.Config.Session.Secure,
		SkipPaths:    probePaths,
		SkipPrefixes: []string{staticPrefix},
	})
	routerConfig.OperatorMiddleware = middleware.Operators()
	routerConfig.LoggingConfig.Logger = c.Logger
	routerConfig.LoggingConfig.SkipPaths = probePaths
	routerConfig.RecoveryConfig.Logger = c.Logger

	if c.RateLimitStore != nil {
		routerConfig.MutationMiddleware = middleware.RateLimit(middleware.RateLimitConfig{
			Logger: c.Logger,
			Store:  c.RateLimitStore,
			Limit:  c.Config.RateLimit.Limit,
			Window: c.Config.RateLimit.Window,
		})
	}

	router := httpserver.NewRouter(e, routerConfig)

	e.HTTPErrorHandler = httpserver.ErrorHandler(c.Logger, c.TemplateHandler.ErrorPage)

	if err := httphandler.SetupStaticRoutes(e, web.StaticFS); err != nil {
		c.Logger.Error("failed to setup static routes", "error", err)
	}

	// Container implements httpserver.HealthChecker.
	router.RegisterHealthEndpoints(c)
	router.RegisterMetricsEndpoint(c.Registry)

	router.RegisterAll(
		c.UsersHandler,
		c.WSHandler,
		c.TemplateHandler,
	)

	if c.Config.IsDevelopment() {
		router.PrintRoutes()
	}

	return router
}
