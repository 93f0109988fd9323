// Package anthropic implements provider.Provider on top of the Anthropic
// Messages API. It is the default backing provider for shiftwise agents.
package anthropic

import (
	"errors"
	"log/slog"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shiftwise/shiftwise/internal/provider"
)

// defaultModel is pinned to a dated release for reproducibility.
const defaultModel = "claude-sonnet-4-5-20250929"

// defaultContextWindow covers all Claude 3.x and 4.x models (200k tokens).
const defaultContextWindow = 200_000

// Interface guards.
var (
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
)

// Config holds the settings for an Anthropic-backed provider.
type Config struct {
	// APIKey authenticates against the Messages API. When empty, the
	// ANTHROPIC_API_KEY environment variable is consulted.
	APIKey string

	// BaseURL overrides the API endpoint, mainly for testing and proxies.
	BaseURL string

	// Model is the model identifier sent with every request.
	Model string

	// MaxTokens caps completion length when the request does not set one.
	MaxTokens int

	// ContextWindow overrides the assumed context window size in tokens.
	ContextWindow int
}

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
}

// New builds an Anthropic provider from cfg. The API key may come from
// the configuration or the ANTHROPIC_API_KEY environment variable.
func New(cfg Config, logger *slog.Logger) (*Anthropic, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = defaultContextWindow
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	// The run loop owns retry policy; keep the SDK out of it.
	opts = append(opts, option.WithMaxRetries(0))

	client := sdkanthropic.NewClient(opts...)
	return &Anthropic{
		config: cfg,
		client: &client,
		logger: logger,
	}, nil
}

// ContextWindowSize implements provider.Provider.
func (a *Anthropic) ContextWindowSize() int {
	return a.config.ContextWindow
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}
