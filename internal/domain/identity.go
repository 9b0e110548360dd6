package domain

import (
	"fmt"
	"sort"
	"strings"
)

const workflowMarker = "/workflow-"

// Identity is the deduplication key for a payload: the same workflow applied
// to the same set of items always resolves to the same identity, regardless
// of submission order or repeated entries.
type Identity struct {
	// CollectionsWorkflow is the partition value: sorted, de-duplicated
	// collection identifiers joined with the workflow name.
	CollectionsWorkflow string
	// ItemIDs is the sort value: sorted, de-duplicated source item
	// identifiers joined with commas.
	ItemIDs string
}

func (id Identity) String() string {
	return id.CollectionsWorkflow + "/" + id.ItemIDs
}

// ComputeIdentity derives the identity for a payload. Collections are taken
// from the payload when present, otherwise from the items' collection fields.
func ComputeIdentity(p *ProcessPayload) (Identity, error) {
	if err := p.Validate(); err != nil {
		return Identity{}, err
	}

	collections := p.Collections
	if len(collections) == 0 {
		for _, item := range p.Items {
			if item.Collection != "" {
				collections = append(collections, item.Collection)
			}
		}
	}
	cols := dedupSorted(collections)
	if len(cols) == 0 {
		cols = []string{"none"}
	}

	ids := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, item.ID)
	}

	return Identity{
		CollectionsWorkflow: strings.Join(cols, "/") + "_" + strings.TrimSpace(p.Workflow),
		ItemIDs:             strings.Join(dedupSorted(ids), ","),
	}, nil
}

// PayloadIDFor returns the canonical payload document id for a payload,
// of the form "{collections}/workflow-{workflow}/{itemids}".
func PayloadIDFor(p *ProcessPayload) (string, error) {
	identity, err := ComputeIdentity(p)
	if err != nil {
		return "", err
	}
	collections := strings.TrimSuffix(identity.CollectionsWorkflow, "_"+strings.TrimSpace(p.Workflow))
	return collections + workflowMarker + strings.TrimSpace(p.Workflow) + "/" + identity.ItemIDs, nil
}

// ParsePayloadID recovers an identity from a canonical payload id.
func ParsePayloadID(payloadID string) (Identity, error) {
	idx := strings.Index(payloadID, workflowMarker)
	if idx < 0 {
		return Identity{}, fmt.Errorf("%w: payload id %q missing workflow segment", ErrMalformedPayload, payloadID)
	}
	collections := payloadID[:idx]
	rest := payloadID[idx+len(workflowMarker):]
	slash := strings.Index(rest, "/")
	if collections == "" || slash <= 0 || slash == len(rest)-1 {
		return Identity{}, fmt.Errorf("%w: payload id %q is not collections/workflow-name/itemids", ErrMalformedPayload, payloadID)
	}
	return Identity{
		CollectionsWorkflow: collections + "_" + rest[:slash],
		ItemIDs:             rest[slash+1:],
	}, nil
}

func dedupSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
