// Package generative wraps the remote generative-language model used for SQL
// fallback synthesis and explanatory answers.
package generative

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable is returned when no generative client is configured.
	ErrUnavailable = errors.New("generative client not configured")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("no response generated")
)

// Service generates text from a prompt.
type Service interface {
	// Generate returns the model's trimmed response, bounded by maxTokens.
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// UnavailableService stands in when no API key is configured.
type UnavailableService struct{}

// Generate always fails with ErrUnavailable.
func (UnavailableService) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", ErrUnavailable
}

// Describe turns a generation failure into the short message shown to users
// in place of an answer.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnavailable):
		return "LLM not available (generative client not configured)."
	case errors.Is(err, ErrEmptyResponse):
		return "No response generated"
	case errors.Is(err, context.DeadlineExceeded):
		return "LLM Error: request timed out"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return "API quota exceeded. Please wait and retry."
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not available"):
		return "Model not available"
	default:
		return "LLM Error: " + err.Error()
	}
}
