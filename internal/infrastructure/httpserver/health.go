// Package httpserver provides HTTP server infrastructure components.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health status constants - single source of truth for all health endpoints.
const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy = "healthy"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy = "unhealthy"

	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded = "degraded"

	// StatusReady indicates the service is ready to accept traffic.
	StatusReady = "ready"

	// StatusNotReady indicates the service is not ready to accept traffic.
	StatusNotReady = "not_ready"
)

// DefaultProbeTimeout bounds a single readiness probe.
const DefaultProbeTimeout = 2 * time.Second

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the response for health endpoints.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// HealthChecker defines the interface for checking application health.
type HealthChecker interface {
	// IsReady checks if all dependencies are healthy and ready to serve traffic.
	// The context should be from the current request to respect cancellation/deadlines.
	IsReady(ctx context.Context) bool

	// GetHealthStatus returns detailed health status of all components.
	GetHealthStatus(ctx context.Context) []ComponentStatus
}

// Probe checks one dependency. A nil error means healthy.
type Probe struct {
	Name string
	// Critical probes make the service not ready when they fail; others only degrade it.
	Critical bool
	Check    func(ctx context.Context) error
}

// ProbeChecker runs a fixed set of probes with a per-probe timeout.
type ProbeChecker struct {
	probes  []Probe
	timeout time.Duration
}

// NewProbeChecker creates a HealthChecker over probes.
func NewProbeChecker(timeout time.Duration, probes ...Probe) *ProbeChecker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &ProbeChecker{probes: probes, timeout: timeout}
}

// IsReady reports whether every critical probe passes.
func (p *ProbeChecker) IsReady(ctx context.Context) bool {
	for _, status := range p.GetHealthStatus(ctx) {
		if status.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

// GetHealthStatus runs every probe and reports its outcome.
func (p *ProbeChecker) GetHealthStatus(ctx context.Context) []ComponentStatus {
	statuses := make([]ComponentStatus, 0, len(p.probes))
	for _, probe := range p.probes {
		statuses = append(statuses, p.run(ctx, probe))
	}
	return statuses
}

func (p *ProbeChecker) run(ctx context.Context, probe Probe) ComponentStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := probe.Check(ctx); err != nil {
		status := StatusDegraded
		if probe.Critical {
			status = StatusUnhealthy
		}
		return ComponentStatus{Name: probe.Name, Status: status, Message: err.Error()}
	}
	return ComponentStatus{Name: probe.Name, Status: StatusHealthy}
}

// HealthEndpoints manages health check endpoint registration.
type HealthEndpoints struct {
	checker HealthChecker
}

// NewHealthEndpoints creates a new HealthEndpoints instance.
func NewHealthEndpoints(checker HealthChecker) *HealthEndpoints {
	return &HealthEndpoints{
		checker: checker,
	}
}

// Register registers all health endpoints on the Echo instance.
// Endpoints registered:
//   - GET /health - Liveness probe (always returns 200 if app is running)
//   - GET /ready - Readiness probe (returns 200 if ready, 503 if not)
//   - GET /health/details - Detailed health status of all components
func (h *HealthEndpoints) Register(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
	e.GET("/ready", h.handleReady)
	e.GET("/health/details", h.handleHealthDetails)
}

func (h *HealthEndpoints) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: StatusHealthy,
	})
}

func (h *HealthEndpoints) handleReady(c echo.Context) error {
	ctx := c.Request().Context()
	components := h.components(ctx)

	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{
				Status:     StatusNotReady,
				Components: components,
			})
		}
	}

	return c.JSON(http.StatusOK, HealthResponse{
		Status:     StatusReady,
		Components: components,
	})
}

func (h *HealthEndpoints) handleHealthDetails(c echo.Context) error {
	components := h.components(c.Request().Context())

	overallStatus := StatusHealthy
	statusCode := http.StatusOK

	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
			break
		}
		if comp.Status == StatusDegraded {
			overallStatus = StatusDegraded
			// unhealthy takes precedence
		}
	}

	return c.JSON(statusCode, HealthResponse{
		Status:     overallStatus,
		Components: components,
	})
}

func (h *HealthEndpoints) components(ctx context.Context) []ComponentStatus {
	if h.checker == nil {
		return nil
	}
	return h.checker.GetHealthStatus(ctx)
}

// RegisterHealthEndpoints registers health endpoints with a HealthChecker.
func (r *Router) RegisterHealthEndpoints(checker HealthChecker) {
	NewHealthEndpoints(checker).Register(r.echo)
}
