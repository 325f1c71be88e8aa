package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
)

// Ledger is an in-memory ledger.Ledger
type Ledger struct {
	mu      sync.RWMutex
	records map[string]ledger.Record
}

// New creates an empty in-memory ledger
func New() *Ledger {
	return &Ledger{records: make(map[string]ledger.Record)}
}

func (l *Ledger) Put(ctx context.Context, rec *ledger.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.ObjectKey] = *rec
	return nil
}

func (l *Ledger) Get(ctx context.Context, objectKey string) (*ledger.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[objectKey]
	if !ok {
		return nil, ledger.ErrRecordNotFound
	}
	return &rec, nil
}

func (l *Ledger) List(ctx context.Context, prefix string, limit int) ([]*ledger.Record, error) {
	l.mu.RLock()
	out := make([]*ledger.Record, 0, len(l.records))
	for key, rec := range l.records {
		if strings.HasPrefix(key, prefix) {
			rec := rec
			out = append(out, &rec)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ObjectKey < out[j].ObjectKey
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
