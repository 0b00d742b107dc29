package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"billing-mcp/internal/auth"
	"billing-mcp/internal/repository"
	"billing-mcp/internal/services"
	"billing-mcp/pkg/models"
)

const maxListLimit = 500

// RunService executes and looks up orchestration runs.
type RunService interface {
	Execute(ctx context.Context, req models.RunRequest, operator string) (*models.Run, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, customerID int64, limit int) ([]*models.Run, error)
}

// Server implements ServerInterface on top of a RunService.
type Server struct {
	Runs RunService
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates a new Server.
func NewServer(runs RunService) *Server {
	return &Server{Runs: runs}
}

// CreateRun runs the workflow synchronously and returns the recorded run
// (POST /api/v1/runs)
func (s *Server) CreateRun(c echo.Context) error {
	id, err := requireScope(c, auth.ScopeRunsWrite)
	if err != nil {
		return err
	}

	var req models.RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	run, err := s.Runs.Execute(c.Request().Context(), req, id.Name())
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil && run == nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case err != nil:
		c.Logger().Warnf("run %s finished but was not recorded: %v", run.ID, err)
	}
	return c.JSON(http.StatusCreated, run)
}

// ListRuns returns recent runs
// (GET /api/v1/runs)
func (s *Server) ListRuns(c echo.Context, params ListRunsParams) error {
	if _, err := requireScope(c, auth.ScopeRunsRead); err != nil {
		return err
	}

	var customerID int64
	if params.CustomerID != nil {
		customerID = *params.CustomerID
	}
	limit := repository.DefaultListLimit
	if params.Limit != nil {
		if *params.Limit < 1 || *params.Limit > maxListLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = *params.Limit
	}

	runs, err := s.Runs.List(c.Request().Context(), customerID, limit)
	if err != nil {
		return lookupError(err)
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return c.JSON(http.StatusOK, models.RunList{Runs: runs, Limit: limit})
}

// GetRun returns one run
// (GET /api/v1/runs/{runId})
func (s *Server) GetRun(c echo.Context, runID openapi_types.UUID) error {
	if _, err := requireScope(c, auth.ScopeRunsRead); err != nil {
		return err
	}

	run, err := s.Runs.Get(c.Request().Context(), runID.String())
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func requireScope(c echo.Context, scope string) (*auth.Identity, error) {
	id, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "Identity not found in context")
	}
	if !id.HasScope(scope) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "missing scope "+scope)
	}
	return id, nil
}

func lookupError(err error) error {
	switch {
	case errors.Is(err, repository.ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrStoreDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
