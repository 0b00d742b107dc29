package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"billing-mcp/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS orchestration_runs (
	id              UUID PRIMARY KEY,
	customer_id     BIGINT NOT NULL,
	msisidn         TEXT NOT NULL,
	document_id     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	error           TEXT,
	operator        TEXT,
	report_location TEXT NOT NULL DEFAULT '',
	report          JSONB NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orchestration_runs_customer_idx
	ON orchestration_runs (customer_id, started_at DESC);
`

const runColumns = "id, customer_id, msisidn, document_id, status, error, operator, report_location, report, started_at, finished_at"

// DefaultListLimit caps ListRuns when no positive limit is given.
const DefaultListLimit = 50

// PostgresRunStore is a PostgreSQL implementation of the RunStore interface.
type PostgresRunStore struct {
	db *pgxpool.Pool
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// EnsureSchema creates the runs table and index.
func (s *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun inserts a run.
func (s *PostgresRunStore) SaveRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO orchestration_runs ("+runColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		run.ID, run.CustomerID, run.MSISIDN, run.DocumentID, run.Status, run.Error, run.Operator,
		run.ReportLocation, []byte(run.Report), run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by its ID.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRow(ctx, "SELECT "+runColumns+" FROM orchestration_runs WHERE id = $1", id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first. A zero customerID lists every customer.
func (s *PostgresRunStore) ListRuns(ctx context.Context, customerID int64, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		"SELECT "+runColumns+" FROM orchestration_runs WHERE ($1::bigint = 0 OR customer_id = $1::bigint) ORDER BY started_at DESC LIMIT $2",
		customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Ping checks the database connection.
func (s *PostgresRunStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	var report []byte
	err := row.Scan(&run.ID, &run.CustomerID, &run.MSISIDN, &run.DocumentID, &run.Status,
		&run.Error, &run.Operator, &run.ReportLocation, &report, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.Report = report
	return &run, nil
}
