// Package repositories defines interfaces for data access operations.
package repositories

import (
	"context"

	"github.com/TFMV/fedquery/pkg/models"
)

// SourceClient executes a read-only statement against one backend.
type SourceClient interface {
	// Backend returns the backend this client serves.
	Backend() models.BackendID
	// Execute runs stmt and returns its rows. Failures are *errors.BackendError
	// carrying the statement text.
	Execute(ctx context.Context, stmt models.SQLStatement) (*models.ResultSet, error)
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	// Health returns nil when the backend is reachable and healthy.
	Health(ctx context.Context) error
}

// Registry resolves backend identifiers to clients.
type Registry map[models.BackendID]SourceClient

// Get returns the client for id.
func (r Registry) Get(id models.BackendID) (SourceClient, bool) {
	c, ok := r[id]
	return c, ok
}
