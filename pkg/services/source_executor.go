package services

import (
	"context"
	"fmt"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/infrastructure/metrics"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
)

// sourceExecutor runs statements on the registered backends with logging and
// metrics.
type sourceExecutor struct {
	sources repositories.Registry
	logger  Logger
	metrics MetricsCollector
}

func (e *sourceExecutor) execute(ctx context.Context, stmt models.SQLStatement) (*models.ResultSet, *errors.BackendError) {
	client, ok := e.sources.Get(stmt.Backend)
	if !ok {
		return nil, errors.New(errors.CodeUnavailable, fmt.Sprintf("no client registered for backend %q", stmt.Backend)).WithSQL(stmt.Render())
	}

	e.logger.Info("Executing statement", "backend", stmt.Backend, "step", stmt.Step, "sql", truncateSQL(stmt.Render(), 120))

	timer := e.metrics.StartTimer(metrics.BackendTimer, "backend", string(stmt.Backend))
	rs, err := client.Execute(ctx, stmt)
	elapsed := timer.Stop()

	if err != nil {
		// Report the statement with its arguments inlined, whatever the client attached.
		be := errors.From(err).WithSQL(stmt.Render())
		e.metrics.IncrementCounter(metrics.BackendErrorsTotal, "backend", string(stmt.Backend), "code", be.Code)
		e.logger.Warn("Statement failed", "backend", stmt.Backend, "code", be.Code, "error", be.Message, "duration", elapsed)
		return nil, be
	}

	e.logger.Debug("Statement succeeded", "backend", stmt.Backend, "rows", rs.Len(), "duration", elapsed)
	return rs, nil
}

func truncateSQL(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
