// Package filestore defines the unified interface for object storage backends.
//
// All providers (MinIO, S3, in-memory) implement the Store interface.
// Callers depend only on this package — never on a specific provider package.
//
// Listing is cursor based: a Store exposes single hops of a continuation
// token chain and has no notion of page numbers. The paging package
// builds logical pages on top of it.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	res, err := store.List(ctx, "uploads", filestore.ListOptions{MaxKeys: 100})
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the single interface all file storage providers must implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// List returns one hop of the cursor chain for bucket.
	List(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PutObject stores size bytes read from r at key, overwriting any
	// existing object.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// PresignGetURL returns a time-limited URL that allows anyone to download
	// the object at key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
