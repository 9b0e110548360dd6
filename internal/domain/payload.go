package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload marks caller errors in a submitted payload. Submissions
// failing with it are never retried.
var ErrMalformedPayload = errors.New("malformed payload")

// ChainStep describes a follow-on workflow fed from a completed payload's
// outputs.
type ChainStep struct {
	Workflow string `json:"workflow"`
	Filter   string `json:"filter,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// ProcessPayload is the wire document submitted to a workflow. Unknown fields
// are preserved opaquely across marshal/unmarshal so that task-specific
// parameters survive a round trip through this core.
type ProcessPayload struct {
	ID            string
	Workflow      string
	Collections   []string
	Items         []Item
	UploadOptions map[string]any
	Chain         []ChainStep

	extra map[string]json.RawMessage
}

func (p *ProcessPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]any{
		"id":             &p.ID,
		"workflow":       &p.Workflow,
		"collections":    &p.Collections,
		"items":          &p.Items,
		"upload_options": &p.UploadOptions,
		"chain":          &p.Chain,
	}
	for key, dst := range known {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		delete(raw, key)
	}
	if len(raw) > 0 {
		p.extra = raw
	}
	return nil
}

func (p ProcessPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.extra)+6)
	for k, v := range p.extra {
		out[k] = v
	}
	if p.ID != "" {
		out["id"] = p.ID
	}
	out["workflow"] = p.Workflow
	if p.Collections != nil {
		out["collections"] = p.Collections
	}
	out["items"] = p.Items
	if p.UploadOptions != nil {
		out["upload_options"] = p.UploadOptions
	}
	if len(p.Chain) > 0 {
		out["chain"] = p.Chain
	}
	return json.Marshal(out)
}

// Validate checks the fields this core depends on. Extra fields are never
// validated; they pass through untouched.
func (p *ProcessPayload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: payload is required", ErrMalformedPayload)
	}
	if strings.TrimSpace(p.Workflow) == "" {
		return fmt.Errorf("%w: workflow is required", ErrMalformedPayload)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrMalformedPayload)
	}
	for _, item := range p.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("%w: item id is required", ErrMalformedPayload)
		}
	}
	return nil
}

// Clone returns a deep copy of the payload, including passthrough fields.
func (p *ProcessPayload) Clone() (*ProcessPayload, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("clone payload: %w", err)
	}
	out := &ProcessPayload{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("clone payload: %w", err)
	}
	return out, nil
}

// AssignID sets the canonical payload id derived from the payload identity
// when no id is present.
func (p *ProcessPayload) AssignID() error {
	if p.ID != "" {
		return nil
	}
	id, err := PayloadIDFor(p)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}
