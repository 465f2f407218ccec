package cache

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
	"github.com/TFMV/fedquery/pkg/models"
)

const createCacheTable = `CREATE TABLE IF NOT EXISTS query_cache (
	query_hash TEXT PRIMARY KEY,
	query_text TEXT,
	query_type TEXT,
	result TEXT,
	created_at TEXT
)`

// SQLiteBackend persists entries in a single query_cache table.
type SQLiteBackend struct {
	pool   pool.ConnectionPool
	logger zerolog.Logger
}

// NewSQLiteBackend creates the cache table if needed. The backend takes
// ownership of p and closes it on Close.
func NewSQLiteBackend(ctx context.Context, p pool.ConnectionPool, logger zerolog.Logger) (*SQLiteBackend, error) {
	db, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, createCacheTable); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to create cache table")
	}
	return &SQLiteBackend{
		pool:   p,
		logger: logger.With().Str("component", "sqlite_cache").Logger(),
	}, nil
}

// Load reads the entry for fp.
func (s *SQLiteBackend) Load(ctx context.Context, fp models.Fingerprint) (*models.CacheEntry, bool, error) {
	db, err := s.pool.Get(ctx)
	if err != nil {
		return nil, false, err
	}

	var (
		text, kind, result, createdAt sql.NullString
	)
	err = db.QueryRowContext(ctx,
		`SELECT query_text, query_type, result, created_at FROM query_cache WHERE query_hash = ?`,
		string(fp),
	).Scan(&text, &kind, &result, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to read cache entry")
	}

	return &models.CacheEntry{
		Fingerprint: fp,
		QueryText:   text.String,
		PlanKind:    models.PlanKind(kind.String),
		Result:      []byte(result.String),
		CreatedAt:   createdAt.String,
	}, true, nil
}

// Save upserts entry.
func (s *SQLiteBackend) Save(ctx context.Context, entry *models.CacheEntry) error {
	db, err := s.pool.Get(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO query_cache (query_hash, query_text, query_type, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(entry.Fingerprint), entry.QueryText, string(entry.PlanKind), string(entry.Result), entry.CreatedAt,
	)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to write cache entry")
	}
	return nil
}

// Clear deletes every row.
func (s *SQLiteBackend) Clear(ctx context.Context) error {
	db, err := s.pool.Get(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM query_cache`); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to clear cache")
	}
	return nil
}

// Close closes the underlying pool.
func (s *SQLiteBackend) Close() error {
	return s.pool.Close()
}
