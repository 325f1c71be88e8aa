package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
)

// newTestLedger connects to TEST_DATABASE_URL and truncates the table.
// Tests are skipped when no database is configured.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, connString, "")
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE upload_record")
	require.NoError(t, err)

	return NewWithPool(pool)
}

func TestLedger_PutGet(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := ledger.NewRecord("test/a.png")
	rec.AccessID = "test-id"
	rec.FileName = "a.png"
	rec.ContentType = "image/png"
	rec.Media = "image"
	rec.Size = 42
	rec.ObjectURL = "https://x.example/test/a.png"
	rec.CreatedAt = rec.CreatedAt.Truncate(time.Microsecond)
	require.NoError(t, l.Put(ctx, rec))

	got, err := l.Get(ctx, "test/a.png")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, int64(42), got.Size)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	_, err = l.Get(ctx, "test/missing.png")
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)
}

func TestLedger_ListPrefix(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, key := range []string{"test/a.png", "test_x/b.png", "other/c.png"} {
		rec := ledger.NewRecord(key)
		rec.ObjectURL = "https://x.example/" + key
		require.NoError(t, l.Put(ctx, rec))
	}

	list, err := l.List(ctx, "test_", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "test_x/b.png", list[0].ObjectKey)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `test\_x/50\%\\`, escapeLike(`test_x/50%\`))
}
