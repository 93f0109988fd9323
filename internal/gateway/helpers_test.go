package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shiftwise/shiftwise/internal/agent"
	"github.com/shiftwise/shiftwise/internal/capability"
	"github.com/shiftwise/shiftwise/internal/config"
	ctxengine "github.com/shiftwise/shiftwise/internal/context"
	"github.com/shiftwise/shiftwise/internal/governor"
	"github.com/shiftwise/shiftwise/internal/provider"
	"github.com/shiftwise/shiftwise/internal/provider/providertest"
	"github.com/shiftwise/shiftwise/internal/security"
	"github.com/shiftwise/shiftwise/internal/tool"
)

const testToken = "test-token-123"

type memRuns struct {
	mu   sync.Mutex
	runs map[string]agent.RunResult
}

func newMemRuns() *memRuns { return &memRuns{runs: make(map[string]agent.RunResult)} }

func (m *memRuns) SaveRun(_ context.Context, r agent.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.RunID] = r
	return nil
}

func (m *memRuns) GetRun(_ context.Context, id string) (agent.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return agent.RunResult{}, errors.New("not found")
	}
	return r, nil
}

func (m *memRuns) ListRuns(_ context.Context, agentID string, limit int) ([]agent.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []agent.RunResult
	for _, r := range m.runs {
		if r.AgentID == agentID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type managerRoles struct{}

func (managerRoles) RoleOf(context.Context, string) (capability.Role, error) {
	return capability.RoleManager, nil
}

func (managerRoles) OverridesFor(context.Context, string) ([]capability.Override, error) {
	return nil, nil
}

type fakeOverrideAdmin struct {
	mu      sync.Mutex
	tools   map[string]config.ToolOverride
	modules map[string]config.ModuleOverride
}

func newFakeOverrideAdmin() *fakeOverrideAdmin {
	return &fakeOverrideAdmin{
		tools:   make(map[string]config.ToolOverride),
		modules: make(map[string]config.ModuleOverride),
	}
}

func (f *fakeOverrideAdmin) SetToolOverride(_ context.Context, name string, ov config.ToolOverride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[name] = ov
	return nil
}

func (f *fakeOverrideAdmin) SetModuleOverride(_ context.Context, id string, ov config.ModuleOverride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules[id] = ov
	return nil
}

func (f *fakeOverrideAdmin) ToolOverrides(context.Context) (map[string]config.ToolOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]config.ToolOverride, len(f.tools))
	for k, v := range f.tools {
		out[k] = v
	}
	return out, nil
}

func (f *fakeOverrideAdmin) ModuleOverrides(context.Context) (map[string]config.ModuleOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]config.ModuleOverride, len(f.modules))
	for k, v := range f.modules {
		out[k] = v
	}
	return out, nil
}

type gwHarness struct {
	srv    *httptest.Server
	gw     *Gateway
	hub    *EventHub
	admin  *fakeOverrideAdmin
	runs   *memRuns
	client *http.Client
}

// scriptedProvider walks through responses, then keeps returning a final
// "done" reply.
func scriptedProvider(responses ...provider.CompletionResponse) provider.Provider {
	i := 0
	var mu sync.Mutex
	return &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			if i >= len(responses) {
				return provider.CompletionResponse{Content: "done", FinishReason: provider.FinishReasonStop}, nil
			}
			r := responses[i]
			i++
			return r, nil
		},
	}
}

func newGateway(t *testing.T, p provider.Provider, tools ...tool.Tool) *gwHarness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	toolReg := tool.NewRegistry()
	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		if err := toolReg.Register(tl); err != nil {
			t.Fatal(err)
		}
		names = append(names, tl.Name())
	}
	provReg := provider.NewRegistry()
	if err := provReg.Register("mock", p); err != nil {
		t.Fatal(err)
	}
	if err := provReg.SetDefault("mock"); err != nil {
		t.Fatal(err)
	}

	hub := NewEventHub()
	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: hub.Publish})

	gov := governor.New(governor.Config{
		Tools:       toolReg,
		Invocations: governor.NewMemInvocations(),
		Pendings:    governor.NewMemPendings(),
		Audit:       audit,
		Logger:      logger,
	})

	runs := newMemRuns()
	runner := agent.NewRunner(agent.RunnerConfig{
		Agents: []agent.Definition{{
			ID:            "ops",
			SystemPrompt:  "You coordinate store operations.",
			Tools:         names,
			MaxIterations: 5,
		}},
		Providers:    provReg,
		Tools:        toolReg,
		Governor:     gov,
		Capabilities: capability.NewResolver(managerRoles{}, logger),
		Assembler:    ctxengine.NewAssembler(ctxengine.NewRegistry(), nil, logger),
		Runs:         runs,
		Audit:        audit,
		Logger:       logger,
	})

	admin := newFakeOverrideAdmin()
	gw := New(GatewayConfig{
		HTTP:      config.GatewayConfig{BearerToken: testToken},
		Runner:    runner,
		Governor:  gov,
		Providers: provReg,
		Runs:      runs,
		Overrides: admin,
		Cache:     config.NewCachedOverrides(admin, 0, logger),
		Audit:     audit,
		Hub:       hub,
		Logger:    logger,
	})

	srv := httptest.NewServer(gw.Router())
	t.Cleanup(srv.Close)
	return &gwHarness{srv: srv, gw: gw, hub: hub, admin: admin, runs: runs, client: srv.Client()}
}

// do performs an authenticated request and decodes a JSON response into out
// when out is non-nil.
func (h *gwHarness) do(t *testing.T, method, path, body string, out any) *http.Response {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}
