package report

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// Store owns an opened bucket and the Writer on top of it.
type Store struct {
	*Writer
	bucket *blob.Bucket
}

// Open opens the bucket at bucketURL. The URL scheme selects the driver,
// which must be registered by a blank import (fileblob, memblob, s3blob).
func Open(ctx context.Context, bucketURL, key string) (*Store, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	w, err := NewWriter(b, bucketURL, key)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return &Store{Writer: w, bucket: b}, nil
}

// Read returns the stored object at key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	return s.bucket.ReadAll(ctx, key)
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
