package userapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default client settings.
const (
	DefaultBaseURL = "/api"
	DefaultOrigin  = "http://localhost:8081"
)

// Operation names reported to the Recorder.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Call outcomes reported to the Recorder.
const (
	OutcomeSuccess   = "success"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
)

// ErrInvalidBaseURL is returned when the configured base URL cannot be resolved.
var ErrInvalidBaseURL = errors.New("invalid users api base url")

// Recorder observes every backend call.
type Recorder interface {
	ObserveCall(operation, outcome string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveCall(string, string, time.Duration) {}

// Config contains configuration for Client.
type Config struct {
	// BaseURL is the API base. A relative path such as "/api" is resolved against Origin.
	BaseURL string

	// Origin is the scheme and host used when BaseURL is relative.
	Origin string

	// HTTPClient is an optional custom HTTP client. The default one has no timeout;
	// callers bound requests through the context.
	HTTPClient *http.Client

	// Recorder receives per-call metrics. Optional.
	Recorder Recorder
}

// Client translates typed calls into requests against the users backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	recorder   Recorder
}

// NewClient creates a new users API client.
func NewClient(cfg Config) (*Client, error) {
	base, err := resolveBaseURL(cfg.BaseURL, cfg.Origin)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		recorder:   recorder,
	}, nil
}

// resolveBaseURL joins a relative base path with origin and trims trailing slashes.
func resolveBaseURL(base, origin string) (string, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	if origin == "" {
		origin = DefaultOrigin
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	if !u.IsAbs() {
		o, parseErr := url.Parse(origin)
		if parseErr != nil || o.Scheme == "" || o.Host == "" {
			return "", fmt.Errorf("%w: origin %q", ErrInvalidBaseURL, origin)
		}
		u = o.ResolveReference(&url.URL{Path: "/" + strings.TrimPrefix(u.Path, "/")})
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListUsers returns one page of users.
// The q parameter is omitted entirely when query is blank.
func (c *Client) ListUsers(ctx context.Context, page, size int, query string) (*PageResult, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}

	var result PageResult
	if err := c.doJSON(ctx, OpList, http.MethodGet, "/users?"+params.Encode(), nil, &result); err != nil {
		return nil, err
	}
	if result.Content == nil {
		result.Content = []User{}
	}

	return &result, nil
}

// CreateUser creates a user and returns the stored record.
func (c *Client) CreateUser(ctx context.Context, req CreateRequest) (*User, error) {
	var user User
	if err := c.doJSON(ctx, OpCreate, http.MethodPost, "/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces the username and email of user id.
func (c *Client) UpdateUser(ctx context.Context, id int64, req UpdateRequest) (*User, error) {
	var user User
	path := "/users/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, OpUpdate, http.MethodPut, path, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser deletes user id. The success body is never read.
// A non-2xx answer yields the message "HTTP {status}".
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	start := time.Now()
	reqURL := c.baseURL + "/users/" + strconv.FormatInt(id, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		c.recorder.ObserveCall(OpDelete, OutcomeTransport, time.Since(start))
		return transportError(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.ObserveCall(OpDelete, OutcomeTransport, time.Since(start))
		return transportError(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		c.recorder.ObserveCall(OpDelete, OutcomeHTTPError, time.Since(start))
		return &RequestError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	c.recorder.ObserveCall(OpDelete, OutcomeSuccess, time.Since(start))
	return nil
}

// doJSON performs a request with an optional JSON body and decodes a JSON success body into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()

	err := c.exchange(ctx, method, path, body, out)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeTransport
		if StatusOf(err) != 0 {
			outcome = OutcomeHTTPError
		}
	}
	c.recorder.ObserveCall(op, outcome, time.Since(start))

	return err
}

func (c *Client) exchange(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return transportError(fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return transportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return statusError(resp)
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return transportError(fmt.Errorf("failed to decode response: %w", decodeErr))
	}

	return nil
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
