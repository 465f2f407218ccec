// Package handlers exposes a local store over the HTTP JSON protocol spoken
// by the remote source client.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/infrastructure/pool"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories/local"
	"github.com/TFMV/fedquery/pkg/services"
)

// APIConfig configures BackendAPI.
type APIConfig struct {
	// Database is the label reported by GET /health.
	Database string
	// RequestTimeout bounds every request. Zero disables the limit.
	RequestTimeout time.Duration
}

// RouterOptions adds middleware to the router. Middleware wraps every route;
// Auth wraps only the /api routes.
type RouterOptions struct {
	Middleware []func(http.Handler) http.Handler
	Auth       func(http.Handler) http.Handler
}

// BackendAPI serves read-only access to one local store.
type BackendAPI struct {
	pool   pool.ConnectionPool
	cfg    APIConfig
	logger zerolog.Logger
}

// NewBackendAPI creates the API over p.
func NewBackendAPI(p pool.ConnectionPool, cfg APIConfig, logger zerolog.Logger) *BackendAPI {
	if cfg.Database == "" {
		cfg.Database = "local"
	}
	return &BackendAPI{
		pool:   p,
		cfg:    cfg,
		logger: logger.With().Str("component", "backend_api").Logger(),
	}
}

// Router returns the chi router with every endpoint mounted.
func (a *BackendAPI) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	for _, mw := range opts.Middleware {
		r.Use(mw)
	}
	if a.cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(a.cfg.RequestTimeout))
	}

	r.Get("/health", a.Health)

	r.Route("/api", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		r.Post("/query", a.Query)
		r.Get("/students", a.Students)
		r.Get("/enrollment", a.Enrollment)
		r.Get("/attendance", a.Attendance)
		r.Get("/attendance/summary", a.AttendanceSummary)
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

type queryRequest struct {
	SQL       string        `json:"sql"`
	Statement string        `json:"statement"`
	Args      []interface{} `json:"args"`
}

type queryResponse struct {
	Success bool         `json:"success"`
	Columns []string     `json:"columns,omitempty"`
	Data    []models.Row `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Health handles GET /health.
func (a *BackendAPI) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.pool.HealthCheck(r.Context()); err != nil {
		a.logger.Warn().Err(err).Msg("Health check failed")
		a.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:   "unhealthy",
			Database: a.cfg.Database,
			Error:    errors.GetMessage(err),
		})
		return
	}
	a.writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: a.cfg.Database})
}

// Query handles POST /api/query. Only statements starting with SELECT and
// free of destructive keywords are executed. When the request carries a bound
// statement, that text is checked and run with its args and sql is ignored.
func (a *BackendAPI) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sql, args := strings.TrimSpace(req.SQL), []interface{}(nil)
	if req.Statement != "" {
		sql, args = strings.TrimSpace(req.Statement), req.Args
	}
	upper := strings.ToUpper(sql)
	if !strings.HasPrefix(upper, "SELECT") {
		a.writeError(w, http.StatusForbidden, "Only SELECT queries allowed")
		return
	}
	for _, kw := range services.DestructiveKeywords {
		if strings.Contains(upper, kw) {
			a.writeError(w, http.StatusForbidden, "Destructive queries not allowed")
			return
		}
	}

	a.respondQuery(w, r, sql, args...)
}

// Students handles GET /api/students?student_id=.
func (a *BackendAPI) Students(w http.ResponseWriter, r *http.Request) {
	sql, args := filteredSelect("Students", r, "student_id")
	a.respondData(w, r, sql, args...)
}

// Enrollment handles GET /api/enrollment?course_id=&student_id=.
func (a *BackendAPI) Enrollment(w http.ResponseWriter, r *http.Request) {
	sql, args := filteredSelect("Enrollment", r, "course_id", "student_id")
	a.respondData(w, r, sql, args...)
}

// Attendance handles GET /api/attendance?student_id=&course_id=&status=.
func (a *BackendAPI) Attendance(w http.ResponseWriter, r *http.Request) {
	sql, args := filteredSelect("Attendance", r, "student_id", "course_id", "status")
	a.respondData(w, r, sql, args...)
}

const attendanceSummarySQL = `SELECT student_id, course_id,
       COUNT(*) as total_classes,
       SUM(CASE WHEN LOWER(status) = 'present' THEN 1 ELSE 0 END) as present_count,
       ROUND(100.0 * SUM(CASE WHEN LOWER(status) = 'present' THEN 1 ELSE 0 END) / COUNT(*), 2) as attendance_percentage
FROM Attendance
GROUP BY student_id, course_id
ORDER BY student_id, course_id`

// AttendanceSummary handles GET /api/attendance/summary.
func (a *BackendAPI) AttendanceSummary(w http.ResponseWriter, r *http.Request) {
	a.respondData(w, r, attendanceSummarySQL)
}

// filteredSelect builds SELECT * FROM table with an equality filter for every
// non-empty query parameter in params.
func filteredSelect(table string, r *http.Request, params ...string) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE 1=1")

	var args []interface{}
	q := r.URL.Query()
	for _, p := range params {
		if v := q.Get(p); v != "" {
			b.WriteString(" AND ")
			b.WriteString(p)
			b.WriteString(" = ?")
			args = append(args, v)
		}
	}
	return b.String(), args
}

func (a *BackendAPI) respondQuery(w http.ResponseWriter, r *http.Request, sql string, args ...interface{}) {
	rs, ok := a.run(w, r, sql, args...)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, queryResponse{Success: true, Columns: rs.Columns, Data: rs.Rows})
}

func (a *BackendAPI) respondData(w http.ResponseWriter, r *http.Request, sql string, args ...interface{}) {
	rs, ok := a.run(w, r, sql, args...)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, queryResponse{Success: true, Data: rs.Rows})
}

func (a *BackendAPI) run(w http.ResponseWriter, r *http.Request, sql string, args ...interface{}) (*models.ResultSet, bool) {
	ctx := r.Context()

	db, err := a.pool.Get(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to get connection")
		a.writeError(w, http.StatusServiceUnavailable, errors.GetMessage(err))
		return nil, false
	}

	rs, err := local.Query(ctx, db, sql, args...)
	if err != nil {
		a.logger.Warn().Err(err).Str("sql", sql).Msg("Query failed")
		a.writeError(w, http.StatusBadRequest, errors.GetMessage(err))
		return nil, false
	}

	a.logger.Debug().
		Str("request_id", chimiddleware.GetReqID(ctx)).
		Int("rows", rs.Len()).
		Msg("Query served")
	return rs, true
}

func (a *BackendAPI) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func (a *BackendAPI) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error().Err(err).Msg("Failed to write response")
	}
}
