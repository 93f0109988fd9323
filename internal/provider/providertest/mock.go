// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/shiftwise/shiftwise/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs fall back to
// harmless defaults. All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc          func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	EstimateCostFunc      func(inputTokens, outputTokens int) float64
	ContextWindowSizeFunc func() int
	ModelNameFunc         func() string

	mu            sync.Mutex
	CompleteCalls int
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Calls returns how many times Complete has been invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// EstimateCost delegates to EstimateCostFunc, defaulting to zero cost.
func (m *MockProvider) EstimateCost(inputTokens, outputTokens int) float64 {
	if m.EstimateCostFunc == nil {
		return 0
	}
	return m.EstimateCostFunc(inputTokens, outputTokens)
}

// ContextWindowSize delegates to ContextWindowSizeFunc, defaulting to 128k.
func (m *MockProvider) ContextWindowSize() int {
	if m.ContextWindowSizeFunc == nil {
		return 128000
	}
	return m.ContextWindowSizeFunc()
}

// ModelName delegates to ModelNameFunc, defaulting to "mock-model".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock-model"
	}
	return m.ModelNameFunc()
}

// Interface guard.
var _ provider.Provider = (*MockProvider)(nil)
