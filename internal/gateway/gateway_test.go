package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/shiftwise/shiftwise/internal/agent"
	"github.com/shiftwise/shiftwise/internal/governor"
	"github.com/shiftwise/shiftwise/internal/provider"
	"github.com/shiftwise/shiftwise/internal/security"
	"github.com/shiftwise/shiftwise/internal/tool/tooltest"
)

func TestHealthNoAuth(t *testing.T) {
	t.Parallel()

	h := newGateway(t, scriptedProvider())
	resp, err := h.client.Get(h.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("health status = %q", body.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	h := newGateway(t, scriptedProvider())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/agents", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := h.client.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestCreateAndFetchRun(t *testing.T) {
	t.Parallel()

	h := newGateway(t, scriptedProvider(provider.CompletionResponse{
		Content:      "Coverage looks fine.",
		FinishReason: provider.FinishReasonStop,
		Usage:        provider.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}))

	var res agent.RunResult
	resp := h.do(t, http.MethodPost, "/api/agents/ops/runs",
		`{"user_id":"u1","message":"how is coverage?"}`, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if res.Reply != "Coverage looks fine." {
		t.Errorf("reply = %q", res.Reply)
	}

	var fetched agent.RunResult
	resp = h.do(t, http.MethodGet, "/api/runs/"+res.RunID, "", &fetched)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch status = %d", resp.StatusCode)
	}
	if fetched.RunID != res.RunID || fetched.Reply != res.Reply {
		t.Errorf("fetched = %+v", fetched)
	}

	var listed []agent.RunResult
	resp = h.do(t, http.MethodGet, "/api/agents/ops/runs", "", &listed)
	if resp.StatusCode != http.StatusOK || len(listed) != 1 {
		t.Errorf("list status = %d, runs = %d", resp.StatusCode, len(listed))
	}
}

func TestCreateRunValidation(t *testing.T) {
	t.Parallel()

	h := newGateway(t, scriptedProvider())

	resp := h.do(t, http.MethodPost, "/api/agents/ops/runs", `{"user_id":"u1"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing message: status = %d", resp.StatusCode)
	}
	resp = h.do(t, http.MethodPost, "/api/agents/ops/runs", `{"user_id":"u1","message":"x","bogus":1}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d", resp.StatusCode)
	}
	resp = h.do(t, http.MethodPost, "/api/agents/ghost/runs", `{"user_id":"u1","message":"x"}`, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown agent: status = %d", resp.StatusCode)
	}
}

func TestPendingDecisionFlow(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{ToolName: "publish_schedule", Approval: true}
	h := newGateway(t, scriptedProvider(
		provider.CompletionResponse{
			ToolCalls:    []provider.ToolCall{{ID: "c1", Name: "publish_schedule", Arguments: json.RawMessage(`{}`)}},
			FinishReason: provider.FinishReasonToolUse,
		},
		provider.CompletionResponse{Content: "Queued.", FinishReason: provider.FinishReasonStop},
	), mock)

	var res agent.RunResult
	h.do(t, http.MethodPost, "/api/agents/ops/runs", `{"user_id":"u1","message":"publish"}`, &res)
	if len(res.PendingIDs) != 1 {
		t.Fatalf("pending ids = %v", res.PendingIDs)
	}

	var pendings []governor.PendingInvocation
	resp := h.do(t, http.MethodGet, "/api/pendings?kind=approval", "", &pendings)
	if resp.StatusCode != http.StatusOK || len(pendings) != 1 {
		t.Fatalf("pendings status = %d, count = %d", resp.StatusCode, len(pendings))
	}

	var decision decisionResponse
	resp = h.do(t, http.MethodPost, "/api/pendings/"+pendings[0].ID+"/decision",
		`{"approved":true,"decided_by":"manager-1"}`, &decision)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decision status = %d", resp.StatusCode)
	}
	if decision.Status != governor.StatusExecuted {
		t.Errorf("decision outcome = %s", decision.Status)
	}
	if mock.ExecuteCalls() != 1 {
		t.Errorf("execute calls = %d", mock.ExecuteCalls())
	}

	resp = h.do(t, http.MethodPost, "/api/pendings/"+pendings[0].ID+"/decision",
		`{"approved":false,"decided_by":"manager-1"}`, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second decision status = %d, want 409", resp.StatusCode)
	}
}

func TestSetToolOverride(t *testing.T) {
	t.Parallel()

	h := newGateway(t, scriptedProvider())
	resp := h.do(t, http.MethodPut, "/api/overrides/tools/publish_schedule",
		`{"enabled":false,"per_user_cooldown_minutes":30}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	h.admin.mu.Lock()
	ov := h.admin.tools["publish_schedule"]
	h.admin.mu.Unlock()
	if ov.Enabled == nil || *ov.Enabled {
		t.Errorf("enabled not stored: %+v", ov)
	}
	if ov.PerUserCooldown == nil || *ov.PerUserCooldown != 30*time.Minute {
		t.Errorf("cooldown = %v", ov.PerUserCooldown)
	}
}

func TestEventHubDropsWhenSlow(t *testing.T) {
	t.Parallel()

	hub := NewEventHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		hub.Publish(security.AuditEvent{Type: security.EventToolCall})
	}
	// The buffer holds 64; the rest were dropped, and Publish never blocked.
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			if n != 64 {
				t.Errorf("delivered = %d, want buffer size", n)
			}
			return
		}
	}
}

func TestEventStreamWebsocket(t *testing.T) {
	t.Parallel()

	h := newGateway(t, scriptedProvider())
	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()

	url := strings.Replace(h.srv.URL, "http://", "ws://", 1) + "/ws/events"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + testToken}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the subscription to land before publishing.
	deadline := time.Now().Add(time.Second)
	for {
		h.hub.mu.Lock()
		n := len(h.hub.subs)
		h.hub.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.hub.Publish(security.AuditEvent{Type: security.EventRunStart, RunID: "r-1"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ev security.AuditEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != security.EventRunStart || ev.RunID != "r-1" {
		t.Errorf("event = %+v", ev)
	}
}
