package memory

import (
	"github.com/roach88/querykit/internal/query"
)

// WhereBuilder compiles a Filter tree into a single Predicate.
type WhereBuilder struct {
	comparisons ComparisonBuilder
}

// NewWhereBuilder creates a WhereBuilder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// Build compiles f. The empty filter compiles to a predicate that accepts
// every record.
func (b *WhereBuilder) Build(f query.Filter) (Predicate, error) {
	var preds []Predicate

	if len(f.And) > 0 {
		group, err := b.buildGroup(f.And)
		if err != nil {
			return nil, err
		}
		preds = append(preds, allOf(group))
	}
	if len(f.Or) > 0 {
		group, err := b.buildGroup(f.Or)
		if err != nil {
			return nil, err
		}
		preds = append(preds, anyOf(group))
	}
	for _, name := range f.FieldKeys() {
		p, err := b.buildField(name, f.Fields[name])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	return allOf(preds), nil
}

func (b *WhereBuilder) buildGroup(group []query.Filter) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(group))
	for _, sub := range group {
		p, err := b.Build(sub)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func (b *WhereBuilder) buildField(name string, ff query.FieldFilter) (Predicate, error) {
	if cmp, ok := ff.(query.Comparison); ok {
		ops := cmp.Operators()
		if len(ops) == 0 {
			return matchAll, nil
		}
		preds := make([]Predicate, 0, len(ops))
		for _, op := range ops {
			p, err := b.comparisons.Build(name, op, cmp[op])
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		return anyOf(preds), nil
	}

	nested, ok := query.NestedFilter(ff)
	if !ok {
		return nil, query.NewInvalidFilterError(name, "unsupported filter for '%s': %T", name, ff)
	}
	sub, err := b.Build(nested)
	if err != nil {
		return nil, err
	}
	return func(r query.Record) bool {
		return matchNested(sub, r[name])
	}, nil
}

// matchNested applies a nested predicate to a related value. A to-many
// relation matches when any element matches; a missing relation is
// evaluated as an empty record.
func matchNested(sub Predicate, v any) bool {
	switch rel := v.(type) {
	case nil:
		return sub(query.Record{})
	case map[string]any:
		return sub(rel)
	case []map[string]any:
		for _, item := range rel {
			if sub(item) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range rel {
			if m, ok := item.(map[string]any); ok && sub(m) {
				return true
			}
		}
		return false
	}
	return false
}

func allOf(preds []Predicate) Predicate {
	switch len(preds) {
	case 0:
		return matchAll
	case 1:
		return preds[0]
	}
	return func(r query.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

func anyOf(preds []Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return func(r query.Record) bool {
		for _, p := range preds {
			if p(r) {
				return true
			}
		}
		return false
	}
}
