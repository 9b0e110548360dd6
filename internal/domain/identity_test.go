package domain

import (
	"errors"
	"testing"
)

func TestComputeIdentityOrderInsensitive(t *testing.T) {
	first := &ProcessPayload{
		Workflow:    "ingest",
		Collections: []string{"s2", "landsat"},
		Items:       []Item{{ID: "item-2"}, {ID: "item-1"}},
	}
	second := &ProcessPayload{
		Workflow:    "ingest",
		Collections: []string{"landsat", "s2", "s2"},
		Items:       []Item{{ID: "item-1"}, {ID: "item-2"}, {ID: "item-1"}},
	}

	a, err := ComputeIdentity(first)
	if err != nil {
		t.Fatalf("compute identity: %v", err)
	}
	b, err := ComputeIdentity(second)
	if err != nil {
		t.Fatalf("compute identity: %v", err)
	}
	if a != b {
		t.Fatalf("identities differ: %v vs %v", a, b)
	}
	if a.CollectionsWorkflow != "landsat/s2_ingest" {
		t.Fatalf("unexpected partition value %q", a.CollectionsWorkflow)
	}
	if a.ItemIDs != "item-1,item-2" {
		t.Fatalf("unexpected sort value %q", a.ItemIDs)
	}
}

func TestComputeIdentitySingleCollection(t *testing.T) {
	payload := &ProcessPayload{
		Workflow:    "ingest",
		Collections: []string{"s2"},
		Items:       []Item{{ID: "item-1"}, {ID: "item-2"}},
	}
	identity, err := ComputeIdentity(payload)
	if err != nil {
		t.Fatalf("compute identity: %v", err)
	}
	if identity.CollectionsWorkflow != "s2_ingest" {
		t.Fatalf("unexpected partition value %q", identity.CollectionsWorkflow)
	}
	if identity.ItemIDs != "item-1,item-2" {
		t.Fatalf("unexpected sort value %q", identity.ItemIDs)
	}
}

func TestComputeIdentityCollectionsFromItems(t *testing.T) {
	payload := &ProcessPayload{
		Workflow: "publish",
		Items: []Item{
			{ID: "b", Collection: "beta"},
			{ID: "a", Collection: "alpha"},
		},
	}
	identity, err := ComputeIdentity(payload)
	if err != nil {
		t.Fatalf("compute identity: %v", err)
	}
	if identity.CollectionsWorkflow != "alpha/beta_publish" {
		t.Fatalf("unexpected partition value %q", identity.CollectionsWorkflow)
	}
}

func TestComputeIdentityNoCollections(t *testing.T) {
	payload := &ProcessPayload{
		Workflow: "publish",
		Items:    []Item{{ID: "a"}},
	}
	identity, err := ComputeIdentity(payload)
	if err != nil {
		t.Fatalf("compute identity: %v", err)
	}
	if identity.CollectionsWorkflow != "none_publish" {
		t.Fatalf("unexpected partition value %q", identity.CollectionsWorkflow)
	}
}

func TestComputeIdentityMalformed(t *testing.T) {
	cases := []struct {
		name    string
		payload *ProcessPayload
	}{
		{"missing workflow", &ProcessPayload{Items: []Item{{ID: "a"}}}},
		{"no items", &ProcessPayload{Workflow: "ingest"}},
		{"blank item id", &ProcessPayload{Workflow: "ingest", Items: []Item{{ID: "  "}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ComputeIdentity(tc.payload); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestPayloadIDRoundTrip(t *testing.T) {
	payload := &ProcessPayload{
		Workflow:    "ingest",
		Collections: []string{"s2"},
		Items:       []Item{{ID: "item-2"}, {ID: "item-1"}},
	}
	id, err := PayloadIDFor(payload)
	if err != nil {
		t.Fatalf("payload id: %v", err)
	}
	if id != "s2/workflow-ingest/item-1,item-2" {
		t.Fatalf("unexpected payload id %q", id)
	}

	identity, err := ParsePayloadID(id)
	if err != nil {
		t.Fatalf("parse payload id: %v", err)
	}
	want, _ := ComputeIdentity(payload)
	if identity != want {
		t.Fatalf("parsed identity %v, want %v", identity, want)
	}
}

func TestParsePayloadIDRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "no-marker", "/workflow-wf/items", "cols/workflow-wf", "cols/workflow-wf/"} {
		if _, err := ParsePayloadID(id); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload for %q, got %v", id, err)
		}
	}
}
