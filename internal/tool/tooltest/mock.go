// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shiftwise/shiftwise/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
// Zero-value fields fall back to harmless defaults: a tool named
// "mock-tool" with no gates, accepting any arguments.
type MockTool struct {
	ToolName     string
	Capability   string
	Confirmation bool
	Approval     bool
	CooldownSpec tool.CooldownSpec
	RateSpec     tool.RateLimitSpec

	SchemaFunc   func() json.RawMessage
	ValidateFunc func(args json.RawMessage) error
	ExecuteFunc  func(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error)
	FormatFunc   func(res tool.Result) string

	mu            sync.Mutex
	executeCalls  int
	validateCalls int
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.ToolName != "" {
		return m.ToolName
	}
	return "mock-tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string { return "a mock tool" }

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.SchemaFunc != nil {
		return m.SchemaFunc()
	}
	return json.RawMessage(`{"type":"object"}`)
}

// RequiredCapability implements tool.Tool.
func (m *MockTool) RequiredCapability() string { return m.Capability }

// RequiresConfirmation implements tool.Tool.
func (m *MockTool) RequiresConfirmation() bool { return m.Confirmation }

// RequiresApproval implements tool.Tool.
func (m *MockTool) RequiresApproval() bool { return m.Approval }

// Cooldown implements tool.Tool.
func (m *MockTool) Cooldown() tool.CooldownSpec { return m.CooldownSpec }

// RateLimit implements tool.Tool.
func (m *MockTool) RateLimit() tool.RateLimitSpec { return m.RateSpec }

// Validate implements tool.Tool.
func (m *MockTool) Validate(args json.RawMessage) error {
	m.mu.Lock()
	m.validateCalls++
	m.mu.Unlock()
	if m.ValidateFunc != nil {
		return m.ValidateFunc(args)
	}
	return nil
}

// Execute implements tool.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage, ec tool.ExecContext) (tool.Result, error) {
	m.mu.Lock()
	m.executeCalls++
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args, ec)
	}
	return "ok", nil
}

// FormatResult implements tool.Tool.
func (m *MockTool) FormatResult(res tool.Result) string {
	if m.FormatFunc != nil {
		return m.FormatFunc(res)
	}
	return fmt.Sprint(res)
}

// ExecuteCalls returns how many times Execute has been invoked.
func (m *MockTool) ExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executeCalls
}

// ValidateCalls returns how many times Validate has been invoked.
func (m *MockTool) ValidateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateCalls
}

// Interface guard.
var _ tool.Tool = (*MockTool)(nil)
