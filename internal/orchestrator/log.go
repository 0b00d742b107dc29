package orchestrator

import (
	"fmt"
	"io"
	"time"
)

// Status is the lifecycle state recorded for a step.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Marker returns the console marker for a status.
func (s Status) Marker() string {
	switch s {
	case StatusSuccess:
		return "✓"
	case StatusError:
		return "✗"
	default:
		return "⏳"
	}
}

// StepRecord is one entry of the execution log.
type StepRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Step      string         `json:"step"`
	Status    Status         `json:"status"`
	Data      map[string]any `json:"data"`
}

// ExecutionLog is an append-only, creation-ordered list of step records.
// Timestamps never go backwards even if the clock does.
type ExecutionLog struct {
	records []StepRecord
	now     func() time.Time
	out     io.Writer
}

func newExecutionLog(now func() time.Time, out io.Writer) *ExecutionLog {
	return &ExecutionLog{now: now, out: out}
}

// Append records a step transition and writes a progress line. It cannot
// fail: write errors on the progress stream are ignored.
func (l *ExecutionLog) Append(step string, status Status, data map[string]any) StepRecord {
	ts := l.now()
	if n := len(l.records); n > 0 && ts.Before(l.records[n-1].Timestamp) {
		ts = l.records[n-1].Timestamp
	}

	rec := StepRecord{Timestamp: ts, Step: step, Status: status, Data: data}
	l.records = append(l.records, rec)

	if l.out != nil {
		fmt.Fprintf(l.out, "\n[%s] %s - %s\n", status.Marker(), step, status)
		if data != nil && status == StatusError {
			msg, ok := data["error"]
			if !ok {
				msg = "Unknown error"
			}
			fmt.Fprintf(l.out, "    Error: %v\n", msg)
		}
	}
	return rec
}

// Records returns a copy of all records in creation order.
func (l *ExecutionLog) Records() []StepRecord {
	out := make([]StepRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Outcomes returns only the terminal (success or error) records.
func (l *ExecutionLog) Outcomes() []StepRecord {
	var out []StepRecord
	for _, rec := range l.records {
		if rec.Status == StatusSuccess || rec.Status == StatusError {
			out = append(out, rec)
		}
	}
	return out
}
