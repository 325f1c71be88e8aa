package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/signed-upload/pkg/signedupload/ledger"
)

// Schema creates the upload record table
const Schema = `
CREATE TABLE IF NOT EXISTS upload_record (
	id           UUID PRIMARY KEY,
	object_key   TEXT NOT NULL UNIQUE,
	access_id    TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	content_type TEXT NOT NULL,
	media        TEXT NOT NULL,
	size         BIGINT NOT NULL,
	etag         TEXT NOT NULL DEFAULT '',
	object_url   TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_record_created_at_idx ON upload_record (created_at DESC);`

// DBTX is satisfied by a pool, a connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Ledger implements ledger.Ledger using PostgreSQL
type Ledger struct {
	db DBTX
}

// New creates a ledger on db
func New(db DBTX) *Ledger {
	return &Ledger{db: db}
}

// NewWithPool creates a ledger on a connection pool
func NewWithPool(pool *pgxpool.Pool) *Ledger {
	return &Ledger{db: pool}
}

// Connect opens a pool, sets the search path when schema is given and
// applies Schema.
func Connect(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return pool, nil
}

func (l *Ledger) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (l *Ledger) Put(ctx context.Context, rec *ledger.Record) error {
	query := `
		INSERT INTO upload_record (
			id, object_key, access_id, file_name, content_type,
			media, size, etag, object_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (object_key) DO UPDATE SET
			id = EXCLUDED.id, access_id = EXCLUDED.access_id,
			file_name = EXCLUDED.file_name, content_type = EXCLUDED.content_type,
			media = EXCLUDED.media, size = EXCLUDED.size, etag = EXCLUDED.etag,
			object_url = EXCLUDED.object_url, created_at = EXCLUDED.created_at`

	_, err := l.db.Exec(ctx, query,
		rec.ID, rec.ObjectKey, rec.AccessID, rec.FileName, rec.ContentType,
		rec.Media, rec.Size, rec.ETag, rec.ObjectURL, rec.CreatedAt)
	if err != nil {
		return l.handlePostgresError("put record", err)
	}
	return nil
}

const selectColumns = `id, object_key, access_id, file_name, content_type,
	media, size, etag, object_url, created_at`

func scanRecord(row pgx.Row) (*ledger.Record, error) {
	var rec ledger.Record
	err := row.Scan(&rec.ID, &rec.ObjectKey, &rec.AccessID, &rec.FileName, &rec.ContentType,
		&rec.Media, &rec.Size, &rec.ETag, &rec.ObjectURL, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (l *Ledger) Get(ctx context.Context, objectKey string) (*ledger.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM upload_record WHERE object_key = $1`

	rec, err := scanRecord(l.db.QueryRow(ctx, query, objectKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrRecordNotFound
		}
		return nil, l.handlePostgresError("get record", err)
	}
	return rec, nil
}

func (l *Ledger) List(ctx context.Context, prefix string, limit int) ([]*ledger.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM upload_record
		WHERE object_key LIKE $1 ESCAPE '\'
		ORDER BY created_at DESC, object_key`
	args := []interface{}{escapeLike(prefix) + "%"}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, l.handlePostgresError("list records", err)
	}
	defer rows.Close()

	var out []*ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, l.handlePostgresError("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, l.handlePostgresError("list records", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
