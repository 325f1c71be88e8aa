// Package ledger records the objects accepted by the signed POST receiver.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when no record exists for a key
var ErrRecordNotFound = errors.New("ledger: record not found")

// Record describes one accepted upload. A later upload to the same key
// replaces the earlier record.
type Record struct {
	ID          uuid.UUID `json:"id"`
	ObjectKey   string    `json:"object_key"`
	AccessID    string    `json:"access_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Media       string    `json:"media"`
	Size        int64     `json:"size"`
	ETag        string    `json:"etag,omitempty"`
	ObjectURL   string    `json:"object_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ledger persists upload records
type Ledger interface {
	// Put inserts or replaces the record for rec.ObjectKey
	Put(ctx context.Context, rec *Record) error

	// Get returns the record for objectKey
	Get(ctx context.Context, objectKey string) (*Record, error)

	// List returns records whose key starts with prefix, newest first
	List(ctx context.Context, prefix string, limit int) ([]*Record, error)
}

// NewRecord fills in ID and CreatedAt
func NewRecord(objectKey string) *Record {
	return &Record{
		ID:        uuid.New(),
		ObjectKey: objectKey,
		CreatedAt: time.Now().UTC(),
	}
}
