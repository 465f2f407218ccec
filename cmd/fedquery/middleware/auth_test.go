package middleware

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/fedquery/cmd/fedquery/config"
)

func setupTestAuthMiddleware(t *testing.T, authType string) *AuthMiddleware {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	cfg := config.AuthConfig{
		Enabled: true,
		Type:    authType,
	}

	switch authType {
	case "basic":
		cfg.BasicAuth.Users = map[string]config.UserInfo{
			"testuser": {
				Password: "testpass",
				Roles:    []string{"admin"},
			},
		}
	case "bearer":
		cfg.BearerAuth.Tokens = map[string]string{
			"test-token": "testuser",
		}
	case "jwt":
		cfg.JWTAuth = config.JWTAuthConfig{
			Secret:   "test-secret",
			Issuer:   "test-issuer",
			Audience: "test-audience",
		}
	}

	return NewAuthMiddleware(cfg, logger)
}

// serve runs a request through m and reports the status and the user the
// inner handler saw.
func serve(m *AuthMiddleware, authorization string) (int, string) {
	var user string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = AuthenticatedUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, user
}

func signHS256(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewAuthMiddleware(t *testing.T) {
	m := setupTestAuthMiddleware(t, "jwt")
	assert.True(t, m.config.Enabled)
	assert.Equal(t, "jwt", m.config.Type)
	assert.Equal(t, "test-secret", string(m.HSKey))
	assert.Equal(t, "test-issuer", m.Iss)
	assert.Equal(t, "test-audience", m.Aud)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	m := NewAuthMiddleware(config.AuthConfig{Enabled: false}, zerolog.Nop())
	code, user := serve(m, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, user)
}

func TestAuthMiddleware_Basic(t *testing.T) {
	m := setupTestAuthMiddleware(t, "basic")
	basic := func(s string) string { return "Basic " + base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantUser string
	}{
		{"valid", basic("testuser:testpass"), http.StatusOK, "testuser"},
		{"wrong password", basic("testuser:nope"), http.StatusUnauthorized, ""},
		{"unknown user", basic("other:testpass"), http.StatusUnauthorized, ""},
		{"no colon", basic("testuser"), http.StatusUnauthorized, ""},
		{"bad encoding", "Basic !!!", http.StatusUnauthorized, ""},
		{"wrong scheme", "Bearer test-token", http.StatusUnauthorized, ""},
		{"missing", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, user := serve(m, tt.header)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	m := setupTestAuthMiddleware(t, "bearer")

	code, user := serve(m, "Bearer test-token")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "testuser", user)

	code, _ = serve(m, "Bearer other-token")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = serve(m, "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAuthMiddleware_JWT(t *testing.T) {
	m := setupTestAuthMiddleware(t, "jwt")
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "testuser",
			"exp": time.Now().Add(time.Hour).Unix(),
			"iss": "test-issuer",
			"aud": "test-audience",
		}
	}

	tests := []struct {
		name     string
		token    func() string
		wantCode int
		wantUser string
	}{
		{
			name:     "valid",
			token:    func() string { return signHS256(t, m.HSKey, valid()) },
			wantCode: http.StatusOK,
			wantUser: "testuser",
		},
		{
			name: "expired",
			token: func() string {
				c := valid()
				c["exp"] = time.Now().Add(-time.Hour).Unix()
				return signHS256(t, m.HSKey, c)
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "no expiry",
			token: func() string {
				c := valid()
				delete(c, "exp")
				return signHS256(t, m.HSKey, c)
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := valid()
				c["iss"] = "someone-else"
				return signHS256(t, m.HSKey, c)
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "wrong audience",
			token: func() string {
				c := valid()
				c["aud"] = "other"
				return signHS256(t, m.HSKey, c)
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "no subject",
			token: func() string {
				c := valid()
				delete(c, "sub")
				return signHS256(t, m.HSKey, c)
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong key",
			token:    func() string { return signHS256(t, []byte("other-secret"), valid()) },
			wantCode: http.StatusUnauthorized,
		},
		{
			name: "none algorithm",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodNone, valid()).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return s
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "garbage",
			token:    func() string { return "not.a.jwt" },
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, user := serve(m, "Bearer "+tt.token())
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestAuthMiddleware_UnsupportedType(t *testing.T) {
	m := NewAuthMiddleware(config.AuthConfig{Enabled: true, Type: "oauth2"}, zerolog.Nop())
	code, _ := serve(m, "Bearer x")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRecoveryMiddleware(t *testing.T) {
	var stderr bytes.Buffer
	m := NewRecoveryMiddleware(zerolog.New(zerolog.NewTestWriter(t)))
	m.stderr = &stderr

	h := m.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal server error"}`, rec.Body.String())
	assert.Contains(t, stderr.String(), "PANIC in GET /health: boom")
}

type recordingCollector struct {
	counters   []string
	histograms []string
}

func (c *recordingCollector) IncrementCounter(name string, labels ...string) {
	c.counters = append(c.counters, name+labelString(labels))
}

func (c *recordingCollector) RecordHistogram(name string, _ float64, labels ...string) {
	c.histograms = append(c.histograms, name+labelString(labels))
}

func (c *recordingCollector) RecordGauge(string, float64, ...string) {}

func (c *recordingCollector) StartTimer(string, ...string) Timer { return stubTimer{} }

type stubTimer struct{}

func (stubTimer) Stop() float64 { return 0 }

func labelString(labels []string) string {
	s := ""
	for i := 0; i+1 < len(labels); i += 2 {
		s += " " + labels[i] + "=" + labels[i+1]
	}
	return s
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	c := &recordingCollector{}
	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(c).Handler)
	r.Get("/api/students", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/students?student_id=S001", nil))

	assert.Equal(t, []string{
		"http_requests_total route=/api/students method=GET",
		"http_responses_total route=/api/students code=418",
	}, c.counters)
	assert.Equal(t, []string{"http_request_duration_seconds route=/api/students"}, c.histograms)
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	var buf bytes.Buffer
	m := NewLoggingMiddleware(zerolog.New(&buf))

	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("no"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, buf.String(), `"status":403`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"path":"/api/query"`)
}
