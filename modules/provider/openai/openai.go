// Package openai implements provider.Provider against any API speaking the
// OpenAI chat completions dialect (OpenAI itself, Groq, Mistral, vLLM,
// LiteLLM and friends) via a configurable base URL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shiftwise/shiftwise/internal/provider"
)

// Interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// Config holds the settings for an OpenAI-compatible provider.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1". Required.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// MaxTokens caps completion length when the request does not set one.
	MaxTokens int

	// ContextWindow is the assumed context window size in tokens.
	ContextWindow int

	// InputCentsPerMTok and OutputCentsPerMTok price the model in cents
	// per million tokens. Zero means cost reporting stays at zero, which
	// is the honest answer for self-hosted endpoints.
	InputCentsPerMTok  float64
	OutputCentsPerMTok float64

	// Timeout bounds the response-header wait on each request.
	Timeout time.Duration
}

// Provider is an OpenAI-compatible chat completions client.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New builds a Provider from cfg.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("openai: base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("openai: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("openai: base url scheme must be http or https, got %q", u.Scheme)
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = 128_000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Response-header timeout instead of a whole-client timeout, so slow
	// completions are bounded by the caller's context rather than cut off
	// mid-body.
	client := &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}

	return &Provider{config: cfg, client: client, logger: logger}, nil
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	body := buildRequest(p.config.Model, p.config.MaxTokens, req)

	resp, err := p.doRequest(ctx, body)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return parseResponse(wire), nil
}

// doRequest posts body to the chat completions endpoint.
func (p *Provider) doRequest(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Caller cancellation is not a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return resp, nil
}

// EstimateCost implements provider.Provider. The result is in cents.
func (p *Provider) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.config.InputCentsPerMTok/1_000_000 +
		float64(outputTokens)*p.config.OutputCentsPerMTok/1_000_000
}

// ContextWindowSize implements provider.Provider.
func (p *Provider) ContextWindowSize() int {
	return p.config.ContextWindow
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck probes the /models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}
	return nil
}
