// Package models defines the domain models for the billing orchestration service
package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the terminal state of an orchestration run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRequest starts an orchestration run for one customer line
type RunRequest struct {
	CustomerID int64  `json:"customer_id" validate:"required,gt=0"`
	MSISIDN    string `json:"msisidn" validate:"required,numeric,min=8,max=15"`
	DocumentID string `json:"document_id,omitempty" validate:"omitempty,max=64"`
}

// Run is a recorded orchestration run
type Run struct {
	ID             string          `json:"id" db:"id"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	MSISIDN        string          `json:"msisidn" db:"msisidn"`
	DocumentID     string          `json:"document_id,omitempty" db:"document_id"`
	Status         RunStatus       `json:"status" db:"status"`
	Error          *string         `json:"error,omitempty" db:"error"`
	Operator       *string         `json:"operator,omitempty" db:"operator"`
	ReportLocation string          `json:"report_location,omitempty" db:"report_location"`
	Report         json.RawMessage `json:"report,omitempty" db:"report"` // JSONB
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	FinishedAt     time.Time       `json:"finished_at" db:"finished_at"`
}

// RunList is a page of runs, newest first
type RunList struct {
	Runs  []*Run `json:"runs"`
	Limit int    `json:"limit"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
