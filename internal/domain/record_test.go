package domain

import "testing"

func TestParseState(t *testing.T) {
	if s, ok := ParseState(" failed "); !ok || s != StateFailed {
		t.Fatalf("parse failed state: %v %v", s, ok)
	}
	if _, ok := ParseState("bogus"); ok {
		t.Fatalf("parsed unknown state")
	}
	if _, ok := ParseState(""); ok {
		t.Fatalf("parsed empty state")
	}
}

func TestCanTransition(t *testing.T) {
	for _, terminal := range []State{StateCompleted, StateFailed, StateInvalid, StateAborted} {
		if !CanTransition(StateProcessing, terminal) {
			t.Fatalf("expected PROCESSING -> %s", terminal)
		}
		if !CanTransition(terminal, StateProcessing) {
			t.Fatalf("expected %s -> PROCESSING rerun", terminal)
		}
		if CanTransition(terminal, StateCompleted) && terminal != StateProcessing {
			t.Fatalf("unexpected %s -> COMPLETED", terminal)
		}
	}
	if CanTransition(StateProcessing, StateProcessing) {
		t.Fatalf("unexpected PROCESSING -> PROCESSING")
	}
	if CanTransition(StateCompleted, StateFailed) {
		t.Fatalf("unexpected COMPLETED -> FAILED")
	}
}

func TestLatestExecution(t *testing.T) {
	record := StateRecord{}
	if record.LatestExecution() != "" {
		t.Fatalf("expected empty execution")
	}
	record.Executions = []string{"first", "second"}
	if record.LatestExecution() != "second" {
		t.Fatalf("unexpected latest execution %q", record.LatestExecution())
	}
}
