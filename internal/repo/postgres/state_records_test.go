package postgres

import (
	"strings"
	"testing"
	"time"
)

func TestClaimProcessingQueryIsConditional(t *testing.T) {
	if !strings.Contains(claimProcessingQuery, "ON CONFLICT (collections_workflow, itemids) DO UPDATE") {
		t.Fatalf("expected upsert conflict clause in claim query")
	}
	if !strings.Contains(claimProcessingQuery, "WHERE state_records.state <> 'PROCESSING'") {
		t.Fatalf("expected in-flight guard in claim query")
	}
	if !strings.Contains(claimProcessingQuery, "executions = state_records.executions || EXCLUDED.executions") {
		t.Fatalf("expected execution append in claim query")
	}
	if strings.Contains(claimProcessingQuery, "created = EXCLUDED.created") {
		t.Fatalf("claim query must preserve the original created timestamp")
	}
	if !strings.Contains(claimProcessingQuery, "attempts = state_records.attempts + 1") {
		t.Fatalf("expected attempt increment in claim query")
	}
	if !strings.Contains(claimProcessingQuery, "(SELECT state FROM prior)") {
		t.Fatalf("expected prior state in claim returning clause")
	}
}

func TestSetTerminalQueryRequiresProcessing(t *testing.T) {
	if !strings.Contains(setTerminalQuery, "AND state = 'PROCESSING'") {
		t.Fatalf("expected PROCESSING guard in terminal transition query")
	}
	if !strings.Contains(setTerminalQuery, "RETURNING "+stateRecordColumns) {
		t.Fatalf("expected full record in terminal returning clause")
	}
}

func TestAppendExecutionQueryIsStateAgnostic(t *testing.T) {
	if strings.Contains(appendExecutionQuery, "state =") {
		t.Fatalf("append execution must not depend on state")
	}
	if strings.Contains(appendExecutionQuery, "attempts =") {
		t.Fatalf("append execution must not count as an attempt")
	}
	if !strings.Contains(appendExecutionQuery, "executions = executions || $4::jsonb") {
		t.Fatalf("expected execution append clause")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	want := continuation{
		Updated:             time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		CollectionsWorkflow: "s2_ingest",
		ItemIDs:             "item-1,item-2",
	}
	token, err := encodeToken(want)
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token is not url safe: %q", token)
	}
	got, err := decodeToken(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if !got.Updated.Equal(want.Updated) || got.CollectionsWorkflow != want.CollectionsWorkflow || got.ItemIDs != want.ItemIDs {
		t.Fatalf("token round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := decodeToken("not base64 at all!!"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, err := decodeToken("bm90LWpzb24"); err == nil {
		t.Fatalf("expected error for non-json token")
	}
}

func TestEscapeLikePrefix(t *testing.T) {
	if got := escapeLikePrefix("s2_ingest"); got != `s2\_ingest%` {
		t.Fatalf("unexpected escaped prefix %q", got)
	}
	if got := escapeLikePrefix(`100%`); got != `100\%%` {
		t.Fatalf("unexpected escaped prefix %q", got)
	}
}

func TestDecodeStrings(t *testing.T) {
	out, err := decodeStrings(nil)
	if err != nil || out == nil || len(out) != 0 {
		t.Fatalf("expected empty slice for nil input, got %v %v", out, err)
	}
	out, err = decodeStrings([]byte(`["a","b"]`))
	if err != nil || len(out) != 2 {
		t.Fatalf("unexpected decode result %v %v", out, err)
	}
	if _, err := decodeStrings([]byte(`{`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}
