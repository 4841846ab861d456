package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/userdesk/internal/config"
	"github.com/lllypuk/userdesk/internal/infrastructure/httpserver"
	"github.com/lllypuk/userdesk/internal/middleware"
	"github.com/lllypuk/userdesk/internal/testutil"
	"github.com/lllypuk/userdesk/internal/userapi"
)

func testConfig(origin string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.App.Environment = "test"
	cfg.API.Origin = origin
	cfg.API.BaseURL = "/api"
	cfg.API.Timeout = 5 * time.Second
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startConsole builds and starts a container and returns an httptest server in front of it.
func startConsole(t *testing.T, cfg *config.Config, opts ...ContainerOption) (*Container, *httptest.Server) {
	t.Helper()

	opts = append([]ContainerOption{WithLogger(quietLogger())}, opts...)
	c, err := NewContainer(cfg, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c.StartEventBus(ctx)
	c.StartHub(ctx)
	c.StartSessionSweeper(ctx)
	require.Eventually(t, c.Hub.IsRunning, time.Second, 5*time.Millisecond)

	e := echo.New()
	SetupRoutes(e, c)
	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		assert.NoError(t, c.Close())
	})

	return c, srv
}

// browser is an HTTP client that keeps cookies and does not follow redirects.
func browser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, client *http.Client, target string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html")

	return send(t, client, req)
}

func post(t *testing.T, client *http.Client, target string, form url.Values) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")

	return send(t, client, req)
}

func send(t *testing.T, client *http.Client, req *http.Request) (*http.Response, string) {
	t.Helper()

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestContainerOption_WithLogger(t *testing.T) {
	c := &Container{}
	logger := quietLogger()

	WithLogger(logger)(c)

	assert.Same(t, logger, c.Logger)
}

func TestContainer_Close_NoResources(t *testing.T) {
	c := &Container{Logger: slog.Default()}

	assert.NoError(t, c.Close())
}

func TestContainer_IsReady_NoProbes(t *testing.T) {
	c := &Container{Logger: slog.Default()}

	assert.False(t, c.IsReady(context.Background()))

	statuses := c.GetHealthStatus(context.Background())
	require.Len(t, statuses, 1)
	assert.Equal(t, httpserver.StatusUnhealthy, statuses[0].Status)
}

func TestNewContainer_InMemory(t *testing.T) {
	_, api := newFakeUsersAPI(t)

	c, err := NewContainer(testConfig(api.URL), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.EventBus)
	assert.NotNil(t, c.Hub)
	assert.NotNil(t, c.Broadcaster)
	assert.NotNil(t, c.Sessions)
	assert.NotNil(t, c.UsersHandler)
	assert.NotNil(t, c.WSHandler)
	assert.IsType(t, &middleware.MemoryRateLimitStore{}, c.RateLimitStore)
	assert.Equal(t, api.URL+"/api", c.Users.BaseURL())
}

func TestNewContainer_RateLimitDisabled(t *testing.T) {
	_, api := newFakeUsersAPI(t)
	cfg := testConfig(api.URL)
	cfg.RateLimit.Enabled = false

	c, err := NewContainer(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.RateLimitStore)
}

func TestNewContainer_UnknownBusType(t *testing.T) {
	_, api := newFakeUsersAPI(t)
	cfg := testConfig(api.URL)
	cfg.EventBus.Type = "kafka"

	_, err := NewContainer(cfg, WithLogger(quietLogger()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "event bus")
}

func TestConsole_HealthAndMetrics(t *testing.T) {
	_, api := newFakeUsersAPI(t)
	_, srv := startConsole(t, testConfig(api.URL))
	client := browser(t)

	resp, _ := get(t, client, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, client, srv.URL+"/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode, body)

	// Probe paths never open a browser session.
	assert.Empty(t, resp.Cookies())

	_, body = get(t, client, srv.URL+"/metrics")
	assert.Contains(t, body, "userdesk_sessions_active")
	assert.Contains(t, body, "userdesk_api_calls_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestConsole_StaticAssetsOpenNoSession(t *testing.T) {
	_, api := newFakeUsersAPI(t)
	c, srv := startConsole(t, testConfig(api.URL))

	resp, body := get(t, browser(t), srv.URL+"/static/app.js")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "users.changed")
	assert.Empty(t, resp.Cookies())
	assert.Equal(t, 0, c.Sessions.Len())
}

func TestConsole_ReadyFailsWhenBackendIsDown(t *testing.T) {
	_, api := newFakeUsersAPI(t)
	cfg := testConfig(api.URL)
	api.Close()

	_, srv := startConsole(t, cfg)

	resp, body := get(t, browser(t), srv.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, body)
}

func TestConsole_CreateFlow(t *testing.T) {
	api, apiSrv := newFakeUsersAPI(t,
		userapi.User{ID: 1, Username: "ann", Email: "ann@example.com"},
	)
	c, srv := startConsole(t, testConfig(apiSrv.URL))
	client := browser(t)

	resp, body := get(t, client, srv.URL+"/users")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ann@example.com")
	assert.Equal(t, 1, c.Sessions.Len())

	resp, body = post(t, client, srv.URL+"/users", url.Values{
		"username": {"bob"},
		"email":    {"bob@example.com"},
		"password": {"pw"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "User bob created")
	assert.Contains(t, body, "bob@example.com")
	assert.Equal(t, 2, api.count())

	// Same browser, same session.
	assert.Equal(t, 1, c.Sessions.Len())

	resp, body = post(t, client, srv.URL+"/users", url.Values{
		"username": {"bob"},
		"email":    {"bob2@example.com"},
		"password": {"pw"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Username already exists")
}

func TestConsole_DeleteFlow(t *testing.T) {
	api, apiSrv := newFakeUsersAPI(t,
		userapi.User{ID: 1, Username: "ann", Email: "ann@example.com"},
		userapi.User{ID: 2, Username: "cid", Email: "cid@example.com"},
	)
	_, srv := startConsole(t, testConfig(apiSrv.URL))
	client := browser(t)

	get(t, client, srv.URL+"/users")

	_, body := get(t, client, srv.URL+"/users/2/delete")
	assert.Contains(t, body, "Delete user cid?")

	resp, _ := post(t, client, srv.URL+"/users/2/delete", url.Values{"confirm": {"no"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, api.count())

	resp, body = post(t, client, srv.URL+"/users/2/delete", url.Values{"confirm": {"yes"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "User deleted")
	assert.NotContains(t, body, "cid@example.com")
	assert.Equal(t, 1, api.count())
}

func TestConsole_TabsOfOneBrowserKeepTheirOwnList(t *testing.T) {
	users := make([]userapi.User, 0, 12)
	for i := 1; i <= 12; i++ {
		name := fmt.Sprintf("u%02d", i)
		users = append(users, userapi.User{ID: int64(i), Username: name, Email: name + "@example.com"})
	}
	_, apiSrv := newFakeUsersAPI(t, users...)
	c, srv := startConsole(t, testConfig(apiSrv.URL))
	client := browser(t)

	_, tabA := get(t, client, srv.URL+"/users?page=0&size=10")
	require.Contains(t, tabA, "u03@example.com")
	editLink := hrefWithPrefix(t, tabA, "/users/3/edit")
	screenA := screenParam(t, editLink)

	_, tabB := get(t, client, srv.URL+"/users?page=1&size=10")
	require.Contains(t, tabB, "u11@example.com")
	require.NotContains(t, tabB, "u03@example.com")
	assert.Equal(t, 1, c.Sessions.Len(), "both tabs share the browser session")

	resp, body := get(t, client, srv.URL+editLink)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="u03@example.com"`)

	resp, body = get(t, client, srv.URL+"/users/3/edit")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="u03@example.com"`)

	// A change notice in tab A keeps tab A on its own page.
	resp, body = get(t, client, srv.URL+"/partials/users?screen="+screenA)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "u03@example.com")
	replaced, err := url.Parse(resp.Header.Get("HX-Replace-Url"))
	require.NoError(t, err)
	assert.Equal(t, "0", replaced.Query().Get("page"))
	assert.Equal(t, screenA, replaced.Query().Get("screen"))
}

func hrefWithPrefix(t *testing.T, body, prefix string) string {
	t.Helper()
	m := regexp.MustCompile(`href="(` + regexp.QuoteMeta(prefix) + `[^"]*)"`).FindStringSubmatch(body)
	require.Len(t, m, 2, "no link to %s", prefix)
	return html.UnescapeString(m[1])
}

func screenParam(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	screen := u.Query().Get("screen")
	require.NotEmpty(t, screen)
	return screen
}

func TestConsole_MutationRateLimit(t *testing.T) {
	_, apiSrv := newFakeUsersAPI(t)
	cfg := testConfig(apiSrv.URL)
	cfg.RateLimit.Limit = 1
	_, srv := startConsole(t, cfg)
	client := browser(t)

	get(t, client, srv.URL+"/users")

	resp, _ := post(t, client, srv.URL+"/users", url.Values{
		"username": {"one"}, "email": {"one@example.com"}, "password": {"pw"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = post(t, client, srv.URL+"/users", url.Values{
		"username": {"two"}, "email": {"two@example.com"}, "password": {"pw"},
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Reads are never throttled.
	resp, _ = get(t, client, srv.URL+"/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConsole_ChangePushedToOtherTabs(t *testing.T) {
	_, apiSrv := newFakeUsersAPI(t)
	c, srv := startConsole(t, testConfig(apiSrv.URL))

	watcher := browser(t)
	get(t, watcher, srv.URL+"/users")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dialer := gorillaws.Dialer{Jar: watcher.Jar}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		return c.Hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	editor := browser(t)
	get(t, editor, srv.URL+"/users")
	post(t, editor, srv.URL+"/users", url.Values{
		"username": {"dee"}, "email": {"dee@example.com"}, "password": {"pw"},
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"type":"users.changed"`)
	assert.Contains(t, string(msg), `"action":"created"`)
}

func TestConsole_RedisBus(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	_, apiSrv := newFakeUsersAPI(t)

	cfg := testConfig(apiSrv.URL)
	cfg.EventBus.Type = "redis"
	cfg.EventBus.RedisChannelPrefix = testutil.KeyPrefix(t)

	c, srv := startConsole(t, cfg, WithRedis(client))

	assert.IsType(t, &middleware.RedisRateLimitStore{}, c.RateLimitStore)

	resp, body := get(t, browser(t), srv.URL+"/health/details")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"redis"`)

	// The injected client stays open after Close.
	require.NoError(t, c.Close())
	assert.NoError(t, client.Ping(context.Background()).Err())
}
