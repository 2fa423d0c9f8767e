package query

import (
	"sort"
)

// Filter is a backend-agnostic predicate tree.
//
// Semantics:
//
//	AND(and-group) ∧ OR(or-group) ∧ AND over Fields
//
// An empty Filter matches every record. Within one field, multiple operators
// are combined with OR:
//
//	{age: {lt: 18, gt: 65}}  =>  age < 18 OR age > 65
type Filter struct {
	And    []Filter
	Or     []Filter
	Fields map[string]FieldFilter
}

// FieldFilter is the condition attached to a field name in a Filter.
//
// This is a sealed interface. Implementations:
//   - Comparison: operator → value map applied to the field itself
//   - Filter / *Filter: nested filter applied to a related sub-record
type FieldFilter interface {
	fieldFilter()
}

// Comparison maps operators to their operand for a single field.
type Comparison map[Operator]any

func (Comparison) fieldFilter() {}
func (Filter) fieldFilter()     {}

// Range is the operand of between and notBetween. Both ends are inclusive.
type Range struct {
	Lower any `json:"lower" yaml:"lower"`
	Upper any `json:"upper" yaml:"upper"`
}

// AsRange interprets a between operand. It accepts Range, *Range, and maps
// with "lower" and "upper" keys.
func AsRange(v any) (Range, bool) {
	switch r := v.(type) {
	case Range:
		return r, true
	case *Range:
		if r == nil {
			return Range{}, false
		}
		return *r, true
	case map[string]any:
		lower, lok := r["lower"]
		upper, uok := r["upper"]
		if !lok || !uok || len(r) != 2 {
			return Range{}, false
		}
		return Range{Lower: lower, Upper: upper}, true
	}
	return Range{}, false
}

// Operators returns the operators of c in canonical order. Names outside the
// supported set sort after the known operators so compilers can reject them.
func (c Comparison) Operators() []Operator {
	ops := make([]Operator, 0, len(c))
	var unknown []Operator
	for _, op := range Operators {
		if _, ok := c[op]; ok {
			ops = append(ops, op)
		}
	}
	for op := range c {
		if !op.Valid() {
			unknown = append(unknown, op)
		}
	}
	sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
	return append(ops, unknown...)
}

// IsEmpty reports whether f has no conditions at all.
func (f Filter) IsEmpty() bool {
	return len(f.And) == 0 && len(f.Or) == 0 && len(f.Fields) == 0
}

// FieldKeys returns the field names of f sorted ascending.
func (f Filter) FieldKeys() []string {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldNames returns every field referenced by f or its and/or groups,
// sorted and de-duplicated. Nested filters contribute their top-level name.
func (f Filter) FieldNames() []string {
	seen := map[string]struct{}{}
	var walk func(Filter)
	walk = func(cur Filter) {
		for _, sub := range cur.And {
			walk(sub)
		}
		for _, sub := range cur.Or {
			walk(sub)
		}
		for name := range cur.Fields {
			seen[name] = struct{}{}
		}
	}
	walk(f)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeFilter combines filters with AND, skipping empty ones.
func MergeFilter(filters ...Filter) Filter {
	var parts []Filter
	for _, f := range filters {
		if !f.IsEmpty() {
			parts = append(parts, f)
		}
	}
	switch len(parts) {
	case 0:
		return Filter{}
	case 1:
		return parts[0]
	}
	return Filter{And: parts}
}

// IDFilter builds a filter matching the given ids on idField: eq for a single
// id, in for several.
func IDFilter(idField string, ids ...any) Filter {
	if len(ids) == 1 {
		return Filter{Fields: map[string]FieldFilter{idField: Comparison{OpEq: ids[0]}}}
	}
	list := make([]any, len(ids))
	copy(list, ids)
	return Filter{Fields: map[string]FieldFilter{idField: Comparison{OpIn: list}}}
}

// NestedFilter unwraps a FieldFilter that is a nested filter.
func NestedFilter(ff FieldFilter) (Filter, bool) {
	switch v := ff.(type) {
	case Filter:
		return v, true
	case *Filter:
		if v == nil {
			return Filter{}, true
		}
		return *v, true
	}
	return Filter{}, false
}
