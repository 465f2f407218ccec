package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg.BaseURL = srv.URL
	c := NewClient(cfg, models.BackendSecondary, zerolog.New(zerolog.NewTestWriter(t)))
	t.Cleanup(func() {
		c.httpClient.CloseIdleConnections()
		srv.Close()
	})
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Execute(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        interface{}
		wantColumns []string
		wantRows    []models.Row
		wantCode    string
		wantMessage string
	}{
		{
			name:   "data envelope",
			status: http.StatusOK,
			body: map[string]interface{}{
				"success": true,
				"columns": []string{"course_id", "course_name"},
				"data":    []map[string]interface{}{{"course_id": 101, "course_name": "Databases"}},
			},
			wantColumns: []string{"course_id", "course_name"},
			wantRows:    []models.Row{{"course_id": int64(101), "course_name": "Databases"}},
		},
		{
			name:   "rows envelope without columns",
			status: http.StatusOK,
			body: map[string]interface{}{
				"success": true,
				"rows":    []map[string]interface{}{{"name": "Smith", "credits": 3.5}},
			},
			wantColumns: []string{"credits", "name"},
			wantRows:    []models.Row{{"name": "Smith", "credits": 3.5}},
		},
		{
			name:        "empty result",
			status:      http.StatusOK,
			body:        map[string]interface{}{"success": true, "columns": []string{"course_id"}, "data": []interface{}{}},
			wantColumns: []string{"course_id"},
			wantRows:    []models.Row{},
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        map[string]interface{}{"success": false},
			wantCode:    errors.CodeQueryFailed,
			wantMessage: "API Error 500",
		},
		{
			name:        "rejected statement",
			status:      http.StatusForbidden,
			body:        map[string]interface{}{"success": false, "error": "Only SELECT queries allowed"},
			wantCode:    errors.CodeQueryFailed,
			wantMessage: "API Error 403: Only SELECT queries allowed",
		},
		{
			name:        "reported failure",
			status:      http.StatusOK,
			body:        map[string]interface{}{"success": false, "error": "no such table: Courses"},
			wantCode:    errors.CodeQueryFailed,
			wantMessage: "no such table: Courses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}, Config{})

			stmt := models.SQLStatement{Backend: models.BackendSecondary, Text: "SELECT * FROM Courses;"}
			rs, err := c.Execute(context.Background(), stmt)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				assert.Equal(t, tt.wantMessage, errors.GetMessage(err))

				var be *errors.BackendError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, "SELECT * FROM Courses;", be.SQL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantColumns, rs.Columns)
			assert.Equal(t, tt.wantRows, rs.Rows)
		})
	}
}

func TestClient_ExecuteSendsRenderedStatement(t *testing.T) {
	var got queryRequest
	var auth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/query", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "columns": []string{}, "data": []interface{}{}})
	}, Config{Token: "secret-token"})

	stmt := models.SQLStatement{
		Text: "SELECT * FROM Faculty f WHERE f.name LIKE ?;",
		Args: []interface{}{"%o'brien%"},
	}
	_, err := c.Execute(context.Background(), stmt)
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM Faculty f WHERE f.name LIKE '%o''brien%';", got.SQL)
	assert.Equal(t, stmt.Text, got.Statement)
	assert.Equal(t, []interface{}{"%o'brien%"}, got.Args)
	assert.Equal(t, "Bearer secret-token", auth)
}

func TestClient_ExecuteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, models.BackendSecondary, zerolog.Nop())
	rs, err := c.Execute(context.Background(), models.SQLStatement{Text: "SELECT * FROM Courses;"})

	assert.Nil(t, rs)
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
	assert.Contains(t, errors.GetMessage(err), "Cannot connect to remote backend")
}

func TestClient_ExecuteTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Config{Timeout: 50 * time.Millisecond})

	_, err := c.Execute(context.Background(), models.SQLStatement{Text: "SELECT 1 FROM Courses;"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDeadlineExceeded, errors.GetCode(err))
}

func TestClient_Health(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		wantErr bool
	}{
		{"healthy", http.StatusOK, map[string]string{"status": "healthy", "database": "campus"}, false},
		{"degraded", http.StatusOK, map[string]string{"status": "degraded"}, true},
		{"error status", http.StatusServiceUnavailable, map[string]string{"status": "healthy"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				writeJSON(w, tt.status, tt.body)
			}, Config{})

			err := c.Health(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
