// Package local executes statements against an embedded relational store
// reached through database/sql.
package local

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
)

// Source implements repositories.SourceClient over a connection pool.
type Source struct {
	pool    pool.ConnectionPool
	backend models.BackendID
	logger  zerolog.Logger
}

// NewSource creates a local source serving backend.
func NewSource(p pool.ConnectionPool, backend models.BackendID, logger zerolog.Logger) *Source {
	return &Source{
		pool:    p,
		backend: backend,
		logger:  logger.With().Str("repo", "local").Str("backend", string(backend)).Logger(),
	}
}

var _ repositories.SourceClient = (*Source)(nil)
var _ repositories.HealthChecker = (*Source)(nil)

// Backend returns the backend identifier.
func (s *Source) Backend() models.BackendID {
	return s.backend
}

// Execute runs stmt, binding its arguments.
func (s *Source) Execute(ctx context.Context, stmt models.SQLStatement) (*models.ResultSet, error) {
	s.logger.Debug().
		Str("sql", truncate(stmt.Text, 120)).
		Int("args_count", len(stmt.Args)).
		Msg("Executing statement")

	db, err := s.pool.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, err.Error()).WithSQL(stmt.Render())
	}

	rs, err := Query(ctx, db, stmt.Text, stmt.Args...)
	if err != nil {
		return nil, errors.From(err).WithSQL(stmt.Render())
	}
	return rs, nil
}

// Health checks the pool.
func (s *Source) Health(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// Query runs query on db and collects every row. Values are normalized with
// models.NormalizeValue. Failures carry the driver message and the query text.
func Query(ctx context.Context, db *sql.DB, query string, args ...interface{}) (*models.ResultSet, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError(ctx, err, query)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, queryError(ctx, err, query)
	}

	var out []models.Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, queryError(ctx, err, query)
		}

		row := make(models.Row, len(columns))
		for i, col := range columns {
			row[col] = models.NormalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(ctx, err, query)
	}

	if out == nil {
		out = []models.Row{}
	}
	return &models.ResultSet{Columns: columns, Rows: out}, nil
}

func queryError(ctx context.Context, err error, query string) *errors.BackendError {
	code := errors.CodeQueryFailed
	if ctx.Err() == context.DeadlineExceeded {
		code = errors.CodeDeadlineExceeded
	}
	return errors.Wrap(err, code, err.Error()).WithSQL(query)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
