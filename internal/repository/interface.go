package repository

import (
	"context"
	"errors"

	"billing-mcp/pkg/models"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunStore is an interface for storing and retrieving orchestration runs.
type RunStore interface {
	// EnsureSchema creates the runs table if it does not exist.
	EnsureSchema(ctx context.Context) error
	// SaveRun inserts a finished run.
	SaveRun(ctx context.Context, run *models.Run) error
	// GetRun retrieves a run by its ID.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	// ListRuns returns the most recent runs, optionally for one customer.
	ListRuns(ctx context.Context, customerID int64, limit int) ([]*models.Run, error)
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
