package middleware

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// RecoveryMiddleware provides panic recovery middleware.
type RecoveryMiddleware struct {
	logger zerolog.Logger
	stderr io.Writer
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger zerolog.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger,
		stderr: os.Stderr,
	}
}

// Handler turns a panic in next into a 500 response.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				m.handlePanic(rec, r.Method+" "+r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"success":false,"error":"internal server error"}`)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// handlePanic logs panic information.
func (m *RecoveryMiddleware) handlePanic(r interface{}, route string) {
	stack := debug.Stack()

	m.logger.Error().
		Str("route", route).
		Interface("panic", r).
		Str("stack", string(stack)).
		Msg("Panic recovered")

	fmt.Fprintf(m.stderr, "PANIC in %s: %v\n%s\n", route, r, stack)
}
