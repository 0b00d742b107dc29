package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"billing-mcp/internal/logging"
	"billing-mcp/internal/orchestrator"
	"billing-mcp/internal/repository"
	"billing-mcp/pkg/models"
)

var (
	// ErrInvalidRequest wraps run request validation failures.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrStoreDisabled is returned by lookups when no run store is configured.
	ErrStoreDisabled = errors.New("run history is disabled")
)

// RunService executes orchestration runs and records them.
type RunService struct {
	gateway  orchestrator.Gateway
	store    repository.RunStore
	reports  ReportSinks
	logger   *logging.Logger
	validate *validator.Validate
	out      io.Writer
	now      func() time.Time
}

// NewRunService creates a new RunService. store and reports may be nil.
func NewRunService(gateway orchestrator.Gateway, store repository.RunStore, reports ReportSinks, logger *logging.Logger) *RunService {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &RunService{
		gateway:  gateway,
		store:    store,
		reports:  reports,
		logger:   logger,
		validate: validator.New(),
		out:      io.Discard,
		now:      time.Now,
	}
}

// ReportKey is the object key a run's report is written under.
func ReportKey(runID string) string {
	return "runs/" + runID + ".json"
}

// Execute runs the workflow for req. A workflow that stops on a fatal step
// is still a recorded run with status failed; the returned error is only
// set when the request is invalid or the run could not be recorded.
func (s *RunService) Execute(ctx context.Context, req models.RunRequest, operator string) (*models.Run, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	id := uuid.NewString()
	logger := s.logger.With("run_id", id, "customer_id", req.CustomerID)

	sink := &locationSink{}
	opts := []orchestrator.Option{
		orchestrator.WithOutput(s.out),
		orchestrator.WithLogger(logger),
		orchestrator.WithClock(s.now),
	}
	if s.reports != nil {
		sink.next = s.reports.Sink(ReportKey(id))
		opts = append(opts, orchestrator.WithSink(sink))
	}

	o := orchestrator.New(s.gateway, opts...)

	started := s.now()
	runErr := o.Execute(ctx, orchestrator.Input{
		CustomerID: req.CustomerID,
		MSISIDN:    req.MSISIDN,
		DocumentID: req.DocumentID,
	})

	report, err := json.Marshal(o.Report())
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	run := &models.Run{
		ID:             id,
		CustomerID:     req.CustomerID,
		MSISIDN:        req.MSISIDN,
		DocumentID:     req.DocumentID,
		Status:         models.RunStatusCompleted,
		ReportLocation: sink.location,
		Report:         report,
		StartedAt:      started,
		FinishedAt:     s.now(),
	}
	if operator != "" {
		run.Operator = &operator
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = models.RunStatusFailed
		run.Error = &msg
	}

	if s.store != nil {
		// a run cut short by a cancelled request is still recorded
		if err := s.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("failed to record run", "error", err)
			return run, err
		}
	}
	logger.Info("run finished", "status", run.Status, "report", run.ReportLocation)
	return run, nil
}

// Get returns a recorded run.
func (s *RunService) Get(ctx context.Context, id string) (*models.Run, error) {
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrRunNotFound
	}
	return s.store.GetRun(ctx, id)
}

// List returns recent runs, optionally filtered by customer.
func (s *RunService) List(ctx context.Context, customerID int64, limit int) ([]*models.Run, error) {
	if s.store == nil {
		return nil, ErrStoreDisabled
	}
	return s.store.ListRuns(ctx, customerID, limit)
}

// Ping reports whether the run store is reachable. It is a no-op without a store.
func (s *RunService) Ping(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

// HistoryEnabled reports whether runs are recorded.
func (s *RunService) HistoryEnabled() bool {
	return s.store != nil
}

// locationSink remembers where the report landed.
type locationSink struct {
	next     orchestrator.ReportSink
	location string
}

func (l *locationSink) Save(ctx context.Context, r *orchestrator.Report) (string, error) {
	loc, err := l.next.Save(ctx, r)
	if err == nil {
		l.location = loc
	}
	return loc, err
}
