package httpserver_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/userdesk/internal/infrastructure/httpserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markMiddleware(header string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(header, "1")
			return next(c)
		}
	}
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDefaultRouterConfig(t *testing.T) {
	config := httpserver.DefaultRouterConfig()

	assert.NotNil(t, config.Logger)
	assert.Equal(t, "/partials", config.PartialsPrefix)
	assert.Nil(t, config.SessionMiddleware)
}

func TestNewRouter_EmptyPrefixAndNilLogger(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.RouterConfig{})

	router.Partials().GET("/users", ok)

	rec := serve(e, http.MethodGet, "/partials/users")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, e, router.Echo())
}

func TestRouter_SessionMiddlewareRunsOnEveryRoute(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.SessionMiddleware = markMiddleware("X-Session")
	router := httpserver.NewRouter(e, config)

	router.Console().GET("/users", ok)
	router.Partials().GET("/users", ok)

	for _, path := range []string{"/users", "/partials/users"} {
		rec := serve(e, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "1", rec.Header().Get("X-Session"), path)
	}
}

func TestRouter_MutationMiddlewareOnlyWrapsMutations(t *testing.T) {
	e := echo.New()
	config := httpserver.DefaultRouterConfig()
	config.MutationMiddleware = markMiddleware("X-Mutation")
	router := httpserver.NewRouter(e, config)

	router.Console().GET("/users", ok)
	router.Mutations().POST("/users", ok)

	rec := serve(e, http.MethodGet, "/users")
	assert.Empty(t, rec.Header().Get("X-Mutation"))

	rec = serve(e, http.MethodPost, "/users")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Mutation"))
}

func TestRouter_MutationsWithoutMiddleware(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	router.Mutations().POST("/users/:id/delete", ok)

	rec := serve(e, http.MethodPost, "/users/7/delete")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	router.Console().GET("/boom", func(echo.Context) error {
		panic("boom")
	})

	rec := serve(e, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouter_RegisterAll(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	registrar := &testRegistrar{}
	router.RegisterAll(registrar)

	require.True(t, registrar.called)
	rec := serve(e, http.MethodGet, "/about")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type testRegistrar struct {
	called bool
}

func (r *testRegistrar) RegisterRoutes(router *httpserver.Router) {
	r.called = true
	router.Console().GET("/about", ok)
}

func TestRouter_RegisterMetricsEndpoint(t *testing.T) {
	e := echo.New()
	router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_test_total",
		Help: "test counter",
	})
	registry.MustRegister(counter)
	counter.Inc()

	router.RegisterMetricsEndpoint(registry)

	rec := serve(e, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_test_total 1")
}
