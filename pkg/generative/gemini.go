package generative

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash-exp"

// GeminiConfig configures GeminiService.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// GeminiService calls the Gemini API through google.golang.org/genai.
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      zerolog.Logger
}

// NewGeminiService creates a client for the Gemini API.
func NewGeminiService(ctx context.Context, cfg GeminiConfig, logger zerolog.Logger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiService{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.With().Str("component", "gemini").Str("model", cfg.Model).Logger(),
	}, nil
}

// New returns a GeminiService when an API key is configured and an
// UnavailableService otherwise. Client construction failures also degrade to
// UnavailableService.
func New(ctx context.Context, cfg GeminiConfig, logger zerolog.Logger) Service {
	if cfg.APIKey == "" {
		logger.Warn().Msg("No generative API key configured, explanatory answers and SQL fallback disabled")
		return UnavailableService{}
	}
	svc, err := NewGeminiService(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Generative client unavailable")
		return UnavailableService{}
	}
	return svc
}

// Generate sends prompt as a single user turn.
func (g *GeminiService) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(maxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		g.logger.Debug().Err(err).Msg("GenerateContent failed")
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
