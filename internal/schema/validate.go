package schema

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/querykit/internal/query"
)

// validator accumulates issues while walking a query against an entity.
type validator struct {
	registry *Registry
	errs     *multierror.Error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = multierror.Append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) add(err error) {
	v.errs = multierror.Append(v.errs, err)
}

// ValidateFilter checks every field and operator of f against the named
// entity and returns all issues at once. A nil error means f is valid.
//
// ValidateFilter is a pure function with no side effects.
func (r *Registry) ValidateFilter(entity string, f query.Filter) error {
	e, ok := r.Entity(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	v := &validator{registry: r}
	v.validateFilter(e, "", f)
	return v.errs.ErrorOrNil()
}

// ValidateQuery checks the filter and the sort fields of q.
func (r *Registry) ValidateQuery(entity string, q query.Query) error {
	e, ok := r.Entity(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	v := &validator{registry: r}
	v.validateFilter(e, "", q.Filter)
	for i, s := range q.Sorting {
		if _, ok := e.Field(s.Field); !ok {
			v.addf("sorting[%d]: unknown field '%s' on %s", i, s.Field, e.Name)
		}
	}
	if q.Paging.Limit != nil && *q.Paging.Limit < 0 {
		v.addf("paging: limit must be non-negative, got %d", *q.Paging.Limit)
	}
	if q.Paging.Offset < 0 {
		v.addf("paging: offset must be non-negative, got %d", q.Paging.Offset)
	}
	return v.errs.ErrorOrNil()
}

// ValidateAggregate checks the filter and every aggregate field of q.
// sum and avg are only accepted on number fields.
func (r *Registry) ValidateAggregate(entity string, f query.Filter, q query.AggregateQuery) error {
	e, ok := r.Entity(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	v := &validator{registry: r}
	v.validateFilter(e, "", f)
	if err := q.Check(); err != nil {
		v.add(err)
	}
	for _, fn := range append([]query.AggregateFunc{query.FuncGroupBy}, query.AggregateFuncs...) {
		for _, name := range q.Fields(fn) {
			field, ok := e.Field(name)
			if !ok {
				v.addf("%s: unknown field '%s' on %s", fn, name, e.Name)
				continue
			}
			if (fn == query.FuncSum || fn == query.FuncAvg) && field.Type != TypeNumber && field.Type != TypeAny {
				v.addf("%s: field '%s' is %s, not number", fn, name, field.Type)
			}
		}
	}
	return v.errs.ErrorOrNil()
}

func (v *validator) validateFilter(e *Entity, prefix string, f query.Filter) {
	for i, sub := range f.And {
		v.validateFilter(e, fmt.Sprintf("%sand[%d].", prefix, i), sub)
	}
	for i, sub := range f.Or {
		v.validateFilter(e, fmt.Sprintf("%sor[%d].", prefix, i), sub)
	}
	for _, name := range f.FieldKeys() {
		path := prefix + name
		switch ff := f.Fields[name].(type) {
		case query.Comparison:
			field, ok := e.Field(name)
			if !ok {
				if _, isRel := e.Relation(name); isRel {
					v.addf("%s: relation '%s' needs a nested filter, not operators", path, name)
				} else {
					v.addf("%s: unknown field '%s' on %s", path, name, e.Name)
				}
				continue
			}
			v.validateComparison(path, field, ff)
		default:
			nested, ok := query.NestedFilter(ff)
			if !ok {
				v.addf("%s: unsupported field filter %T", path, ff)
				continue
			}
			rel, ok := e.Relation(name)
			if !ok {
				v.addf("%s: '%s' is not a relation of %s", path, name, e.Name)
				continue
			}
			target, _ := v.registry.Entity(rel.Entity)
			v.validateFilter(target, path+".", nested)
		}
	}
}

func (v *validator) validateComparison(path string, field Field, cmp query.Comparison) {
	for _, op := range cmp.Operators() {
		if !op.Valid() {
			v.add(fmt.Errorf("%s: %w", path, query.NewUnknownOperatorError(string(op))))
			continue
		}
		if !v.registry.Allows(field.Type, op) {
			v.addf("%s: operator %s is not allowed on %s fields", path, op, field.Type)
			continue
		}
		value := cmp[op]
		switch {
		case op.IsRange():
			if _, ok := query.AsRange(value); !ok {
				v.add(fmt.Errorf("%s: %w", path, query.NewMalformedBetweenError(field.Name, value)))
			}
		case op.IsList():
			if value != nil && reflect.TypeOf(value).Kind() != reflect.Slice {
				v.addf("%s: %s expects a list, got %T", path, op, value)
			}
		case op == query.OpIs || op == query.OpIsNot:
			if value != nil && value != true && value != false {
				v.addf("%s: %s expects null, true or false, got %v", path, op, value)
			}
		}
	}
}
