// Package middleware provides HTTP middleware for the backend API.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/cmd/fedquery/config"
)

// AuthMiddleware provides authentication middleware.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger

	// HSKey is the HS256 signing key; Iss and Aud are required claims when set.
	HSKey []byte
	Iss   string
	Aud   string
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		logger: logger,
		HSKey:  []byte(cfg.JWTAuth.Secret),
		Iss:    cfg.JWTAuth.Issuer,
		Aud:    cfg.JWTAuth.Audience,
	}
}

// Handler wraps next, rejecting unauthenticated requests with 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := m.authenticate(r)
		if err != nil {
			m.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(authCtx))
	})
}

// authenticate performs authentication based on configured type.
func (m *AuthMiddleware) authenticate(r *http.Request) (context.Context, error) {
	ctx := r.Context()
	if !m.config.Enabled {
		return ctx, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("missing authorization header")
	}

	switch m.config.Type {
	case "basic":
		return m.authenticateBasic(ctx, header)
	case "bearer":
		return m.authenticateBearer(ctx, header)
	case "jwt":
		return m.authenticateJWT(ctx, header)
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", m.config.Type)
	}
}

// authenticateBasic performs basic authentication.
func (m *AuthMiddleware) authenticateBasic(ctx context.Context, header string) (context.Context, error) {
	if !strings.HasPrefix(header, "Basic ") {
		return nil, fmt.Errorf("invalid authorization header")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return nil, fmt.Errorf("invalid credentials encoding")
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return nil, fmt.Errorf("invalid credentials format")
	}

	userInfo, ok := m.config.BasicAuth.Users[username]
	if !ok {
		return nil, fmt.Errorf("invalid credentials")
	}

	// Constant time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(password), []byte(userInfo.Password)) != 1 {
		return nil, fmt.Errorf("invalid credentials")
	}

	ctx = context.WithValue(ctx, contextKeyUser, username)
	ctx = context.WithValue(ctx, contextKeyRoles, userInfo.Roles)
	return ctx, nil
}

// authenticateBearer performs static bearer token authentication.
func (m *AuthMiddleware) authenticateBearer(ctx context.Context, header string) (context.Context, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, fmt.Errorf("invalid authorization header")
	}

	username, ok := m.config.BearerAuth.Tokens[token]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}

	return context.WithValue(ctx, contextKeyUser, username), nil
}

// authenticateJWT validates an HS256 bearer token and takes the user from
// the sub claim.
func (m *AuthMiddleware) authenticateJWT(ctx context.Context, header string) (context.Context, error) {
	tokenString, ok := bearerToken(header)
	if !ok {
		return nil, fmt.Errorf("invalid authorization header")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.Iss != "" {
		opts = append(opts, jwt.WithIssuer(m.Iss))
	}
	if m.Aud != "" {
		opts = append(opts, jwt.WithAudience(m.Aud))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return m.HSKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return context.WithValue(ctx, contextKeyUser, subject), nil
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="fedquery"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

// Context keys for authentication
type contextKey string

const (
	contextKeyUser  contextKey = "user"
	contextKeyRoles contextKey = "roles"
)

// GetUser extracts the authenticated user from context.
func GetUser(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(contextKeyUser).(string)
	return user, ok
}

// AuthenticatedUser returns the authenticated user, or "" when there is none.
func AuthenticatedUser(ctx context.Context) string {
	user, _ := GetUser(ctx)
	return user
}

// GetRoles extracts the user's roles from context.
func GetRoles(ctx context.Context) ([]string, bool) {
	roles, ok := ctx.Value(contextKeyRoles).([]string)
	return roles, ok
}
