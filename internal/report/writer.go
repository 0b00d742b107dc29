// Package report persists orchestration reports as JSON objects in a blob
// bucket (local directory, in-memory or S3).
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"

	"billing-mcp/internal/orchestrator"
)

const contentType = "application/json"

type (
	// Writer stores reports under a fixed key of a bucket.
	Writer struct {
		bucket BucketWriter
		key    string
		base   string
	}

	// BucketWriter is the subset of *blob.Bucket the writer needs.
	BucketWriter interface {
		WriteAll(context.Context, string, []byte, *blob.WriterOptions) error
	}
)

var (
	ErrBucketRequired = errors.New("bucket is required")
	ErrKeyRequired    = errors.New("report key is required")
	ErrReportRequired = errors.New("report is required")
)

// NewWriter creates a Writer. base is the human-readable bucket location
// used to build the returned save location.
func NewWriter(bucket BucketWriter, base, key string) (*Writer, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	if strings.TrimSpace(key) == "" {
		return nil, ErrKeyRequired
	}
	return &Writer{bucket: bucket, key: key, base: base}, nil
}

// WithKey returns a Writer sharing the bucket but writing to key.
func (w *Writer) WithKey(key string) *Writer {
	c := *w
	c.key = key
	return &c
}

// Sink returns a report sink writing to key.
func (w *Writer) Sink(key string) orchestrator.ReportSink {
	return w.WithKey(key)
}

// Save implements orchestrator.ReportSink.
func (w *Writer) Save(ctx context.Context, r *orchestrator.Report) (string, error) {
	if r == nil {
		return "", ErrReportRequired
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := w.bucket.WriteAll(ctx, w.key, data, opts); err != nil {
		return "", fmt.Errorf("write %s: %w", w.key, err)
	}
	return location(w.base, w.key), nil
}

// location renders where key ended up: a filesystem path for file buckets,
// a URL for anything else.
func location(base, key string) string {
	if base == "" {
		return key
	}
	u, err := url.Parse(base)
	if err != nil {
		return key
	}
	if u.Scheme == "file" {
		dir := u.Host + u.Path
		if dir == "" {
			dir = "."
		}
		return filepath.Join(dir, filepath.FromSlash(key))
	}
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/") + "/" + key
}
