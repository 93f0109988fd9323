package security

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixed },
	})

	l.Log(AuditEvent{
		Type:     EventToolCall,
		RunID:    "run-1",
		AgentID:  "ops",
		ToolName: "move_shift",
		Detail:   `{"shift_id":"s1"}`,
	})

	var got AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSONL: %v", err)
	}
	if got.Type != EventToolCall || got.ToolName != "move_shift" {
		t.Fatalf("event = %+v", got)
	}
	if !got.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, fixed)
	}
}

func TestAuditLogger_RedactsDetailAndMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor()
	r.AddLiteral("hunter2")
	l := NewAuditLogger(AuditLoggerConfig{Writer: &buf, Redactor: r})

	meta := map[string]string{"password": "hunter2"}
	l.Log(AuditEvent{Type: EventConfigChange, Detail: "set password to hunter2", Metadata: meta})

	if strings.Contains(buf.String(), "hunter2") {
		t.Fatal("secret leaked into audit output")
	}
	// The caller's map must not be mutated.
	if meta["password"] != "hunter2" {
		t.Fatal("caller metadata was mutated")
	}
}

func TestAuditLogger_OnEventOrdering(t *testing.T) {
	t.Parallel()

	var seen []EventType
	l := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(e AuditEvent) { seen = append(seen, e.Type) },
	})

	l.Log(AuditEvent{Type: EventRunStart})
	l.Log(AuditEvent{Type: EventRunEnd})

	if len(seen) != 2 || seen[0] != EventRunStart || seen[1] != EventRunEnd {
		t.Fatalf("seen = %v", seen)
	}
}

func TestAuditLogger_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var l *AuditLogger
	l.Log(AuditEvent{Type: EventRunStart}) // must not panic
}
