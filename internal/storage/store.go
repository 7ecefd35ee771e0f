// Package storage adapts object stores (S3-compatible buckets or a local
// directory) to the upload and delivery paths.
package storage

import (
	"context"
	"io"
)

// PutOptions carries per-object attributes recorded by the backend.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
	// IfAbsent makes the write fail with apperr.ErrConflict when key exists.
	IfAbsent bool
}

// Object is an open stored object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// ObjectStore is the minimal surface the adapter needs from a backend.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error
	GetObject(ctx context.Context, key string) (*Object, error)
	DeleteObject(ctx context.Context, key string) error
	// Ping reports whether the backend currently accepts requests.
	Ping(ctx context.Context) error
}
