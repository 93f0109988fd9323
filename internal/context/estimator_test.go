package ctxengine

import "testing"

func TestCharEstimator_Defaults(t *testing.T) {
	t.Parallel()

	e := NewCharEstimator(0)
	if e.CharsPerToken != 4.0 {
		t.Fatalf("default ratio = %v, want 4.0", e.CharsPerToken)
	}
	if got := e.Estimate(""); got != 0 {
		t.Fatalf("empty estimate = %d, want 0", got)
	}
}

func TestCharEstimator_RoundsUp(t *testing.T) {
	t.Parallel()

	e := NewCharEstimator(4)
	if got := e.Estimate("abcde"); got != 2 {
		t.Fatalf("estimate = %d, want 2", got)
	}
}
