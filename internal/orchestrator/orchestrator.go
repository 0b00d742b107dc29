// Package orchestrator runs the billing workflow: fetch the customer's
// invoices, fetch a download link for the first unpaid invoice, then fetch
// payment details. Steps run strictly in sequence and each step reads only
// the committed results of the steps before it.
//
// An Orchestrator owns its results, customer context and execution log for
// a single run and must not be shared between concurrent runs.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Gateway performs the remote operations the workflow depends on.
type Gateway interface {
	ListInvoices(ctx context.Context, customerID int64, msisidn string) (json.RawMessage, error)
	GetInvoiceLink(ctx context.Context, billingInvoiceNumber string, isCyclicInvoice bool) (json.RawMessage, error)
	GetPaymentDetails(ctx context.Context, customerIdentification, idType, document string) (json.RawMessage, error)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// ReportSink persists the end-of-run report and returns where it was written.
type ReportSink interface {
	Save(ctx context.Context, report *Report) (string, error)
}

// Input identifies the customer the workflow runs for.
type Input struct {
	CustomerID int64
	MSISIDN    string
	// DocumentID is the document used for the payment details lookup. When
	// empty the customer id is used.
	DocumentID string
}

func (in Input) documentID() string {
	if in.DocumentID != "" {
		return in.DocumentID
	}
	return strconv.FormatInt(in.CustomerID, 10)
}

// StepError wraps the error of a fatal step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Orchestrator executes the workflow for one customer.
type Orchestrator struct {
	gateway  Gateway
	steps    []Step
	results  Results
	customer *CustomerContext
	log      *ExecutionLog

	out     io.Writer
	logger  Logger
	sink    ReportSink
	now     func() time.Time
	metrics *stepMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOutput sets the operator-facing progress stream (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSink sets where the final report is persisted.
func WithSink(s ReportSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMeter records step outcomes on the given meter instead of the global one.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) { o.metrics = newStepMetrics(m) }
}

// WithSteps replaces the workflow steps.
func WithSteps(steps []Step) Option {
	return func(o *Orchestrator) { o.steps = steps }
}

// New creates an Orchestrator for a single run.
func New(gateway Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway: gateway,
		steps:   Steps(),
		results: Results{},
		out:     os.Stdout,
		logger:  nopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = newStepMetrics(otel.Meter(meterName))
	}
	o.log = newExecutionLog(o.now, o.out)
	return o
}

// LogStep appends a record to the execution log. It never fails.
func (o *Orchestrator) LogStep(step string, status Status, data map[string]any) {
	o.log.Append(step, status, data)
	switch status {
	case StatusError:
		o.logger.Error("workflow step failed", "step", step, "data", data)
	case StatusSuccess:
		o.logger.Info("workflow step completed", "step", step, "data", data)
	default:
		o.logger.Debug("workflow step started", "step", step)
	}
}

// Run executes the steps in order. It returns the error of the first fatal
// step that fails; errors of other steps are logged and swallowed.
func (o *Orchestrator) Run(ctx context.Context, in Input) error {
	for _, step := range o.steps {
		if step.Skip != nil && step.Skip(o) {
			continue
		}
		if err := o.runStep(ctx, step, in); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, in Input) error {
	o.LogStep(step.Name, StatusRunning, nil)
	start := o.now()

	result, summary, err := step.Run(ctx, o, in)
	if err != nil {
		o.LogStep(step.Name, StatusError, map[string]any{"error": err.Error()})
		o.metrics.record(ctx, step, StatusError, o.now().Sub(start))
		if step.Fatal {
			return &StepError{Step: step.Name, Err: err}
		}
		return nil
	}

	if result != nil {
		o.results[step.Key] = result
	}
	o.LogStep(step.Name, StatusSuccess, summary)
	o.metrics.record(ctx, step, StatusSuccess, o.now().Sub(start))
	return nil
}

// Execute runs the workflow, then always prints the summary and persists
// the report, whether or not a step failed. The report is saved even when
// ctx is cancelled. It returns the fatal step error joined with any
// persistence error.
func (o *Orchestrator) Execute(ctx context.Context, in Input) (err error) {
	o.printBanner(in)

	defer func() {
		if saveErr := o.Finish(context.WithoutCancel(ctx)); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}()

	if err = o.Run(ctx, in); err != nil {
		fmt.Fprintf(o.out, "\n✗ Fatal error in orchestration: %v\n", err)
		o.logger.Error("fatal error in orchestration", "customer_id", in.CustomerID, "error", err)
	}
	return err
}

// Customer returns the derived customer context, or nil if step 1 did not
// succeed.
func (o *Orchestrator) Customer() *CustomerContext {
	if o.customer == nil {
		return nil
	}
	c := *o.customer
	return &c
}

// Results returns a copy of the step results.
func (o *Orchestrator) Results() Results {
	out := make(Results, len(o.results))
	for k, v := range o.results {
		out[k] = v
	}
	return out
}

// Log returns the execution log.
func (o *Orchestrator) Log() *ExecutionLog {
	return o.log
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
