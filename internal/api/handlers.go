// Package api contains the HTTP handlers for the billing orchestrator
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"billing-mcp/pkg/models"
)

const (
	serviceName    = "billing-mcp"
	serviceVersion = "1.0.0"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the unauthenticated service endpoints.
type Handler struct {
	checks map[string]Pinger
	now    func() time.Time
}

// NewHandler creates a new Handler. Each named check is pinged on /health.
func NewHandler(checks map[string]Pinger) *Handler {
	return &Handler{checks: checks, now: time.Now}
}

// HandleHealth reports ok when every check passes, degraded otherwise.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: h.now(),
	}

	code := http.StatusOK
	if len(h.checks) > 0 {
		status.Checks = make(map[string]string, len(h.checks))
		for name, p := range h.checks {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			err := p.Ping(ctx)
			cancel()
			if err != nil {
				status.Checks[name] = err.Error()
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status.Checks[name] = "ok"
		}
	}
	return c.JSON(code, status)
}

// ProblemErrorHandler renders errors as RFC 7807 Problem Details.
func ProblemErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	detail := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
	}

	problem := models.ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(code),
		Status:   code,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	_ = c.JSON(code, problem)
}
