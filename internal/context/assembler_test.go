package ctxengine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// fakeProvider is a scripted context module for assembler tests.
type fakeProvider struct {
	id       string
	priority int
	agents   []string
	enabled  bool
	tokens   int
	text     string
	summary  map[string]float64
	err      error
	panics   bool
	calls    int
}

func (f *fakeProvider) ModuleID() string   { return f.id }
func (f *fakeProvider) ModuleName() string { return f.id }
func (f *fakeProvider) Priority() int      { return f.priority }
func (f *fakeProvider) Agents() []string   { return f.agents }
func (f *fakeProvider) Enabled() bool      { return f.enabled }

func (f *fakeProvider) Collect(context.Context, Scope) (Payload, error) {
	f.calls++
	if f.panics {
		panic("collect blew up")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (f *fakeProvider) EstimateTokens(Payload) int { return f.tokens }

func (f *fakeProvider) Format(Payload) string {
	if f.text != "" {
		return f.text
	}
	return "[" + f.id + "]"
}

func (f *fakeProvider) Summary() map[string]float64 { return f.summary }

func newTestAssembler(t *testing.T, providers ...Provider) *Assembler {
	t.Helper()
	reg := NewRegistry()
	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ModuleID(), err)
		}
	}
	return NewAssembler(reg, NewCharEstimator(0), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func moduleIDs(a *Assembled) []string {
	ids := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		ids = append(ids, s.ModuleID)
	}
	return ids
}

func TestAssemble_BudgetSkipsNotTruncates(t *testing.T) {
	t.Parallel()

	// Estimates {300, 300, 50} against budget 500: module2 overflows and
	// is skipped whole, module3 still fits after it.
	a := newTestAssembler(t,
		&fakeProvider{id: "module1", priority: 1, enabled: true, tokens: 300},
		&fakeProvider{id: "module2", priority: 2, enabled: true, tokens: 300},
		&fakeProvider{id: "module3", priority: 3, enabled: true, tokens: 50},
	)

	got := a.Assemble(context.Background(), Request{
		Scope:  Scope{AgentID: "ops"},
		Budget: 500,
	})

	want := []string{"module1", "module3"}
	if ids := moduleIDs(got); !equalStrings(ids, want) {
		t.Fatalf("included = %v, want %v", ids, want)
	}
	if got.TotalTokens != 350 {
		t.Fatalf("total tokens = %d, want 350", got.TotalTokens)
	}
}

func TestAssemble_ReportsSkippedModules(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "fits", priority: 1, enabled: true, tokens: 300},
		&fakeProvider{id: "overflows", priority: 2, enabled: true, tokens: 300},
		&fakeProvider{id: "broken", priority: 3, enabled: true, err: errors.New("boom")},
	)

	got := a.Assemble(context.Background(), Request{
		Scope:  Scope{AgentID: "ops"},
		Budget: 400,
	})

	// Only budget casualties are reported; the failed module is not.
	if want := []string{"overflows"}; !equalStrings(got.Skipped, want) {
		t.Fatalf("skipped = %v, want %v", got.Skipped, want)
	}
}

func TestAssemble_AppendedTextCountsAgainstBudget(t *testing.T) {
	t.Parallel()

	// The module's self-estimate of 90 fits a budget of 100, but the
	// operator-appended text pushes the section over. It must be skipped,
	// not included at an undercounted cost.
	a := newTestAssembler(t,
		&fakeProvider{id: "notes", priority: 1, enabled: true, tokens: 90},
	)
	appended := strings.Repeat("policy reminder ", 20) // ~80 tokens

	got := a.Assemble(context.Background(), Request{
		Scope:     Scope{AgentID: "ops"},
		Budget:    100,
		Overrides: map[string]ModuleOverride{"notes": {AppendedText: appended}},
	})

	if len(got.Sections) != 0 {
		t.Fatalf("sections = %v, want none", moduleIDs(got))
	}
	if !equalStrings(got.Skipped, []string{"notes"}) {
		t.Errorf("skipped = %v", got.Skipped)
	}

	// With room for both, the recorded cost covers the appended text too.
	got = a.Assemble(context.Background(), Request{
		Scope:     Scope{AgentID: "ops"},
		Budget:    500,
		Overrides: map[string]ModuleOverride{"notes": {AppendedText: appended}},
	})
	if len(got.Sections) != 1 {
		t.Fatalf("sections = %v", moduleIDs(got))
	}
	if got.TotalTokens <= 90 {
		t.Errorf("total tokens = %d, want the appended text accounted", got.TotalTokens)
	}
	if !strings.Contains(got.Sections[0].Text, "policy reminder") {
		t.Errorf("section text missing appended portion: %q", got.Sections[0].Text)
	}
}

func TestAssemble_TotalNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 1, enabled: true, tokens: 400},
		&fakeProvider{id: "m2", priority: 2, enabled: true, tokens: 400},
		&fakeProvider{id: "m3", priority: 3, enabled: true, tokens: 400},
	)

	got := a.Assemble(context.Background(), Request{Scope: Scope{AgentID: "ops"}, Budget: 1000})
	if got.TotalTokens > 1000 {
		t.Fatalf("total tokens %d exceeds budget", got.TotalTokens)
	}
}

func TestAssemble_PriorityOrderStable(t *testing.T) {
	t.Parallel()

	// b and c share a priority; registration order must hold the tie.
	a := newTestAssembler(t,
		&fakeProvider{id: "c-first", priority: 5, enabled: true, tokens: 10},
		&fakeProvider{id: "a-late", priority: 9, enabled: true, tokens: 10},
		&fakeProvider{id: "c-second", priority: 5, enabled: true, tokens: 10},
		&fakeProvider{id: "top", priority: 1, enabled: true, tokens: 10},
	)

	got := a.Assemble(context.Background(), Request{Scope: Scope{AgentID: "ops"}})
	want := []string{"top", "c-first", "c-second", "a-late"}
	if ids := moduleIDs(got); !equalStrings(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
}

func TestAssemble_PriorityOverride(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 1, enabled: true, tokens: 10},
		&fakeProvider{id: "m2", priority: 2, enabled: true, tokens: 10},
	)

	first := 0
	got := a.Assemble(context.Background(), Request{
		Scope:     Scope{AgentID: "ops"},
		Overrides: map[string]ModuleOverride{"m2": {Priority: &first}},
	})

	want := []string{"m2", "m1"}
	if ids := moduleIDs(got); !equalStrings(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
}

func TestAssemble_DisabledSkipped(t *testing.T) {
	t.Parallel()

	off := false
	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 1, enabled: true, tokens: 10},
		&fakeProvider{id: "m2", priority: 2, enabled: false, tokens: 10},
		&fakeProvider{id: "m3", priority: 3, enabled: true, tokens: 10},
	)

	got := a.Assemble(context.Background(), Request{
		Scope:     Scope{AgentID: "ops"},
		Overrides: map[string]ModuleOverride{"m3": {Enabled: &off}},
	})

	want := []string{"m1"}
	if ids := moduleIDs(got); !equalStrings(ids, want) {
		t.Fatalf("included = %v, want %v", ids, want)
	}
}

func TestAssemble_KeywordForcesDisabledModule(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "sales", priority: 1, enabled: false, tokens: 10},
	)

	got := a.Assemble(context.Background(), Request{
		Scope: Scope{AgentID: "ops", Message: "How did Vendor Sales look yesterday?"},
		Overrides: map[string]ModuleOverride{
			"sales": {TriggerKeywords: []string{"vendor sales"}},
		},
	})

	if ids := moduleIDs(got); !equalStrings(ids, []string{"sales"}) {
		t.Fatalf("included = %v, want [sales]", ids)
	}
}

func TestAssemble_FailureIsolation(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 1, enabled: true, err: errors.New("backing store down")},
		&fakeProvider{id: "m2", priority: 2, enabled: true, panics: true},
		&fakeProvider{id: "m3", priority: 3, enabled: true, tokens: 10},
	)

	got := a.Assemble(context.Background(), Request{Scope: Scope{AgentID: "ops"}})
	if ids := moduleIDs(got); !equalStrings(ids, []string{"m3"}) {
		t.Fatalf("included = %v, want [m3]", ids)
	}
}

func TestAssemble_SummaryMerge(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "sales", priority: 1, enabled: true, tokens: 10,
			summary: map[string]float64{"total": 1234.5, "vendors": 7}},
	)

	got := a.Assemble(context.Background(), Request{Scope: Scope{AgentID: "ops"}})
	if got.Summary["sales_total"] != 1234.5 {
		t.Fatalf("sales_total = %v, want 1234.5", got.Summary["sales_total"])
	}
	if got.Summary["sales_vendors"] != 7 {
		t.Fatalf("sales_vendors = %v, want 7", got.Summary["sales_vendors"])
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 2, enabled: true, tokens: 30},
		&fakeProvider{id: "m2", priority: 1, enabled: true, tokens: 20},
	)

	req := Request{Scope: Scope{AgentID: "ops"}, Budget: 100}
	first := a.Assemble(context.Background(), req)
	second := a.Assemble(context.Background(), req)

	if !equalStrings(moduleIDs(first), moduleIDs(second)) {
		t.Fatalf("order differs: %v vs %v", moduleIDs(first), moduleIDs(second))
	}
	if first.TotalTokens != second.TotalTokens {
		t.Fatalf("totals differ: %d vs %d", first.TotalTokens, second.TotalTokens)
	}
}

func TestAssemble_AgentFilterAndSubset(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 1, enabled: true, tokens: 10, agents: []string{"ops"}},
		&fakeProvider{id: "m2", priority: 2, enabled: true, tokens: 10, agents: []string{"hr"}},
		&fakeProvider{id: "m3", priority: 3, enabled: true, tokens: 10},
	)

	got := a.Assemble(context.Background(), Request{Scope: Scope{AgentID: "ops"}})
	if ids := moduleIDs(got); !equalStrings(ids, []string{"m1", "m3"}) {
		t.Fatalf("included = %v, want [m1 m3]", ids)
	}

	got = a.Assemble(context.Background(), Request{
		Scope:     Scope{AgentID: "ops"},
		ModuleIDs: []string{"m3"},
	})
	if ids := moduleIDs(got); !equalStrings(ids, []string{"m3"}) {
		t.Fatalf("included = %v, want [m3]", ids)
	}
}

func TestAssembledText_JoinsSections(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t,
		&fakeProvider{id: "m1", priority: 1, enabled: true, tokens: 10, text: "alpha"},
		&fakeProvider{id: "m2", priority: 2, enabled: true, tokens: 10, text: "beta"},
	)

	got := a.Assemble(context.Background(), Request{Scope: Scope{AgentID: "ops"}})
	if text := got.Text(); !strings.Contains(text, "alpha\n\nbeta") {
		t.Fatalf("text = %q, want joined sections", text)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
