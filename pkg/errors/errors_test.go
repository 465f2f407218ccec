package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *BackendError
		expected string
	}{
		{
			name:     "error without cause",
			err:      &BackendError{Code: CodeQueryFailed, Message: "no such table: Foo"},
			expected: "QUERY_FAILED: no such table: Foo",
		},
		{
			name: "error with cause",
			err: &BackendError{
				Code:    CodeConnectionFailed,
				Message: "cannot connect",
				Cause:   fmt.Errorf("dial tcp: connection refused"),
			},
			expected: "CONNECTION_FAILED: cannot connect (caused by: dial tcp: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestBackendError_UnwrapAndIs(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(cause, CodeConnectionFailed, "cannot connect")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, ErrConnection))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, cause))
}

func TestBackendError_WithSQLAndDetail(t *testing.T) {
	err := New(CodeQueryFailed, "syntax error").
		WithSQL("SELEC * FROM Students;").
		WithDetail("backend", "primary")

	assert.Equal(t, "SELEC * FROM Students;", err.SQL)
	assert.Equal(t, "primary", err.Details["backend"])
}

func TestBackendError_JSONOmitsCause(t *testing.T) {
	err := Wrap(fmt.Errorf("secret"), CodeQueryFailed, "failed").WithSQL("SELECT 1 FROM t;")

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.NotContains(t, string(data), "secret")

	var decoded BackendError
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, CodeQueryFailed, decoded.Code)
	assert.Equal(t, "failed", decoded.Message)
	assert.Equal(t, "SELECT 1 FROM t;", decoded.SQL)
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrapf(cause, CodeQueryFailed, "API Error %d", 500)

	assert.Equal(t, CodeQueryFailed, err.Code)
	assert.Equal(t, "API Error 500", err.Message)
	assert.Equal(t, cause, err.Cause)

	assert.Nil(t, Wrap(nil, CodeQueryFailed, "message"))
	assert.Nil(t, Wrapf(nil, CodeQueryFailed, "message %d", 1))
}

func TestFrom(t *testing.T) {
	be := New(CodeValidationFailed, "rejected")
	assert.Same(t, be, From(fmt.Errorf("wrapped: %w", be)))

	foreign := From(fmt.Errorf("boom"))
	require.NotNil(t, foreign)
	assert.Equal(t, CodeInternal, foreign.Code)
	assert.Equal(t, "boom", foreign.Message)

	assert.Nil(t, From(nil))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		connection bool
		validation bool
		code       string
	}{
		{"connection", New(CodeConnectionFailed, "down"), true, false, CodeConnectionFailed},
		{"validation", New(CodeValidationFailed, "bad"), false, true, CodeValidationFailed},
		{"wrapped connection", fmt.Errorf("execute: %w", Wrap(fmt.Errorf("refused"), CodeConnectionFailed, "down")), true, false, CodeConnectionFailed},
		{"standard error", fmt.Errorf("plain"), false, false, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.connection, IsConnection(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}

	assert.Equal(t, "down", GetMessage(New(CodeConnectionFailed, "down")))
	assert.Equal(t, "plain", GetMessage(fmt.Errorf("plain")))
}
