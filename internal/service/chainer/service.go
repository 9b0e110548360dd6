// Package chainer builds follow-on payloads from a completed payload's
// output items. It never submits anything; submission belongs to the
// processor.
package chainer

import (
	"fmt"
	"strings"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
	"github.com/nimbus-geo/nimbus-go/internal/filter"
)

// DefaultMaxItems bounds items per chained payload when a chain step does
// not set its own limit.
const DefaultMaxItems = 100

type Service struct {
	maxItems int
}

func New(maxItems int) *Service {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Service{maxItems: maxItems}
}

// Chain applies a chain step to a completed payload and returns the payloads
// for the downstream workflow. Items are filtered by the step's predicate
// (no filter passes everything) and partitioned into batches of at most the
// configured maximum; an item is never split across payloads. Zero matching
// items yields an empty slice.
//
// The remaining chain steps of the source payload carry over to each
// produced payload, so multi-step chains unwind one step per completion.
func (s *Service) Chain(completed *domain.ProcessPayload, step domain.ChainStep) ([]*domain.ProcessPayload, error) {
	if s == nil {
		return nil, fmt.Errorf("chainer not initialized")
	}
	if completed == nil {
		return nil, fmt.Errorf("completed payload is required")
	}
	if strings.TrimSpace(step.Workflow) == "" {
		return nil, fmt.Errorf("chain step workflow is required")
	}

	var predicate *filter.Predicate
	if step.Filter != "" {
		compiled, err := filter.Compile(step.Filter)
		if err != nil {
			return nil, err
		}
		predicate = compiled
	}

	selected, err := predicate.Select(completed.Items)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return []*domain.ProcessPayload{}, nil
	}

	maxItems := step.MaxItems
	if maxItems <= 0 {
		maxItems = s.maxItems
	}

	rest := remainingSteps(completed.Chain, step)

	out := make([]*domain.ProcessPayload, 0, (len(selected)+maxItems-1)/maxItems)
	for start := 0; start < len(selected); start += maxItems {
		end := start + maxItems
		if end > len(selected) {
			end = len(selected)
		}
		next, err := completed.Clone()
		if err != nil {
			return nil, err
		}
		next.ID = ""
		next.Workflow = step.Workflow
		next.Collections = nil
		next.Items = selected[start:end]
		next.Chain = rest
		if err := next.AssignID(); err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// remainingSteps drops the first occurrence of the consumed step from the
// source payload's chain.
func remainingSteps(chain []domain.ChainStep, consumed domain.ChainStep) []domain.ChainStep {
	for i, step := range chain {
		if step == consumed {
			rest := make([]domain.ChainStep, 0, len(chain)-1)
			rest = append(rest, chain[:i]...)
			return append(rest, chain[i+1:]...)
		}
	}
	return chain
}
