// Package provider defines the LLM provider contract for shiftwise.
// Concrete implementations live in separate packages (e.g., modules/provider/anthropic)
// and are registered in an explicit Registry constructed at startup.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// EstimateCost returns the estimated cost in cents for a completion
	// with the given input and output token counts.
	EstimateCost(inputTokens, outputTokens int) float64

	// ContextWindowSize returns the maximum context window in tokens.
	ContextWindowSize() int

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing from the gateway health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
