package services

import (
	"billing-mcp/internal/orchestrator"
)

// ReportSinks hands out a report sink per object key.
type ReportSinks interface {
	Sink(key string) orchestrator.ReportSink
}
