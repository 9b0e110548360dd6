package chainer

import (
	"fmt"
	"testing"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
)

func completedPayload(items ...domain.Item) *domain.ProcessPayload {
	return &domain.ProcessPayload{
		ID:       "s2/workflow-ingest/batch",
		Workflow: "ingest",
		Items:    items,
	}
}

func TestChainFiltersItems(t *testing.T) {
	payload := completedPayload(
		domain.Item{ID: "a", Collection: "s2", Properties: map[string]any{"eo:cloud_cover": 5.0}},
		domain.Item{ID: "b", Collection: "s2", Properties: map[string]any{"eo:cloud_cover": 80.0}},
		domain.Item{ID: "c", Collection: "s2", Properties: map[string]any{"eo:cloud_cover": 2.0}},
	)
	step := domain.ChainStep{Workflow: "publish", Filter: `properties["eo:cloud_cover"] < 10`}
	payload.Chain = []domain.ChainStep{step}

	next, err := New(0).Chain(payload, step)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(next) != 1 {
		t.Fatalf("expected one chained payload, got %d", len(next))
	}
	out := next[0]
	if out.Workflow != "publish" {
		t.Fatalf("unexpected workflow %q", out.Workflow)
	}
	if len(out.Items) != 2 || out.Items[0].ID != "a" || out.Items[1].ID != "c" {
		t.Fatalf("unexpected items %+v", out.Items)
	}
	if out.ID == "" || out.ID == payload.ID {
		t.Fatalf("chained payload kept source id %q", out.ID)
	}
	if len(out.Chain) != 0 {
		t.Fatalf("consumed step still present: %v", out.Chain)
	}
}

func TestChainNoMatchesYieldsNothing(t *testing.T) {
	payload := completedPayload(
		domain.Item{ID: "a", Properties: map[string]any{"eo:cloud_cover": 80.0}},
	)
	step := domain.ChainStep{Workflow: "publish", Filter: `properties["eo:cloud_cover"] < 10`}

	next, err := New(0).Chain(payload, step)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(next) != 0 {
		t.Fatalf("expected no chained payloads, got %d", len(next))
	}
}

func TestChainBatchesItems(t *testing.T) {
	items := make([]domain.Item, 7)
	for i := range items {
		items[i] = domain.Item{ID: fmt.Sprintf("item-%02d", i)}
	}
	payload := completedPayload(items...)
	step := domain.ChainStep{Workflow: "publish", MaxItems: 3}

	next, err := New(0).Chain(payload, step)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(next) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(next))
	}
	total := 0
	ids := map[string]bool{}
	for _, out := range next {
		if len(out.Items) > 3 {
			t.Fatalf("batch exceeds limit: %d items", len(out.Items))
		}
		total += len(out.Items)
		if ids[out.ID] {
			t.Fatalf("duplicate chained payload id %q", out.ID)
		}
		ids[out.ID] = true
	}
	if total != 7 {
		t.Fatalf("items lost or duplicated across batches: %d", total)
	}
}

func TestChainCarriesRemainingSteps(t *testing.T) {
	payload := completedPayload(domain.Item{ID: "a"})
	first := domain.ChainStep{Workflow: "publish"}
	second := domain.ChainStep{Workflow: "archive"}
	payload.Chain = []domain.ChainStep{first, second}

	next, err := New(0).Chain(payload, first)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(next) != 1 {
		t.Fatalf("expected one chained payload, got %d", len(next))
	}
	if len(next[0].Chain) != 1 || next[0].Chain[0] != second {
		t.Fatalf("unexpected remaining chain %v", next[0].Chain)
	}
}

func TestChainRejectsBadInput(t *testing.T) {
	svc := New(0)
	if _, err := svc.Chain(nil, domain.ChainStep{Workflow: "publish"}); err == nil {
		t.Fatalf("expected error for nil payload")
	}
	payload := completedPayload(domain.Item{ID: "a"})
	if _, err := svc.Chain(payload, domain.ChainStep{}); err == nil {
		t.Fatalf("expected error for blank workflow")
	}
	if _, err := svc.Chain(payload, domain.ChainStep{Workflow: "publish", Filter: "((("}); err == nil {
		t.Fatalf("expected error for unparseable filter")
	}
}
