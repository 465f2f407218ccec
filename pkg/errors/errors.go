// Package errors provides the structured failure type shared by every backend path.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for backend and synthesis failures.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeConnectionFailed      = "CONNECTION_FAILED"
	CodeQueryFailed           = "QUERY_FAILED"
	CodeSynthesisFailed       = "SYNTHESIS_FAILED"
	CodeGenerativeUnavailable = "GENERATIVE_UNAVAILABLE"
	CodeDeadlineExceeded      = "DEADLINE_EXCEEDED"
	CodeUnavailable           = "UNAVAILABLE"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternal              = "INTERNAL_ERROR"
)

// BackendError is a structured failure carrying a human-readable message and,
// when applicable, the SQL text that caused it.
type BackendError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	SQL     string                 `json:"sql,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Is matches on code only.
func (e *BackendError) Is(target error) bool {
	t, ok := target.(*BackendError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithSQL attaches the offending statement text.
func (e *BackendError) WithSQL(sql string) *BackendError {
	e.SQL = sql
	return e
}

// WithDetail adds a single detail to the error.
func (e *BackendError) WithDetail(key string, value interface{}) *BackendError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is comparisons. BackendError.Is matches on code.
var (
	ErrValidation = &BackendError{Code: CodeValidationFailed, Message: "statement rejected"}
	ErrConnection = &BackendError{Code: CodeConnectionFailed, Message: "backend unreachable"}
)

// New creates a new BackendError with the given code and message.
func New(code, message string) *BackendError {
	return &BackendError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a BackendError.
func Wrap(err error, code, message string) *BackendError {
	if err == nil {
		return nil
	}
	return &BackendError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *BackendError {
	if err == nil {
		return nil
	}
	return &BackendError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// From returns err as a *BackendError, wrapping foreign errors as internal failures.
func From(err error) *BackendError {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return &BackendError{Code: CodeInternal, Message: err.Error(), Cause: err}
}

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsValidation reports whether err is a rejected statement.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
