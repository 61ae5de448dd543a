// Package storage keeps issued QR images. Keys are slash separated
// ("qr/qr_1a2b3c4d.png") on every backend.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Get when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// PutObjectOptions describes an upload. Size is -1 when unknown; the local
// backend ignores it.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	// Metadata becomes object user metadata on MinIO; the local backend does
	// not persist it.
	Metadata map[string]string
}

// ObjectInfo describes a stored QR image.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the QR image store: a local directory or an S3-compatible bucket.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get returns ErrObjectNotFound (wrapped) for a missing key. The caller
	// closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
