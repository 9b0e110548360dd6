// Package filter compiles item-selection predicates used when chaining
// workflows. Expressions evaluate against an item's id, collection, and
// properties, e.g. `properties["eo:cloud_cover"] < 10`.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
)

// Predicate is a compiled item filter. The zero-value *Predicate (nil)
// matches every item.
type Predicate struct {
	Source  string
	program *vm.Program
}

// Compile validates and compiles a filter expression. The property shape is
// not known ahead of time, so compilation is unchecked; type errors surface
// at evaluation.
func Compile(source string) (*Predicate, error) {
	if source == "" {
		return nil, fmt.Errorf("empty filter expression")
	}
	program, err := expr.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return &Predicate{Source: source, program: program}, nil
}

// Match evaluates the predicate against one item.
func (p *Predicate) Match(item domain.Item) (bool, error) {
	if p == nil {
		return true, nil
	}
	properties := item.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	result, err := expr.Run(p.program, map[string]any{
		"id":         item.ID,
		"collection": item.Collection,
		"properties": properties,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", p.Source, err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", p.Source, result)
	}
	return matched, nil
}

// Select returns the items matching the predicate, preserving order.
func (p *Predicate) Select(items []domain.Item) ([]domain.Item, error) {
	if p == nil {
		return items, nil
	}
	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		matched, err := p.Match(item)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, item)
		}
	}
	return out, nil
}
