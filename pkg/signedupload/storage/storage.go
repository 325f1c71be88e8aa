// Package storage defines the blob stores the signed POST receiver writes
// accepted files into.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key has no stored object
var ErrObjectNotFound = errors.New("object not found")

// BlobStore persists uploaded objects by key
type BlobStore interface {
	// Upload stores the reader's content under objectKey
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams stores content with a content type
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens the stored content
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the object
	Delete(ctx context.Context, objectKey string) error

	// Move replaces dstKey with the object at srcKey and removes srcKey
	Move(ctx context.Context, srcKey, dstKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// UploadParams carries the key and content type of an upload
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// ObjectMeta describes a stored object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}
