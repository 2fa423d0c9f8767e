package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// WhereBuilder compiles a Filter tree into a squirrel predicate over an
// entity's table. Nested filters follow the entity's relations and become
// correlated EXISTS subqueries.
type WhereBuilder struct {
	registry    *schema.Registry
	comparisons ComparisonBuilder
}

// NewWhereBuilder creates a WhereBuilder. registry resolves relation targets
// and may be nil when no nested filters are used.
func NewWhereBuilder(d Dialect, registry *schema.Registry) *WhereBuilder {
	return &WhereBuilder{registry: registry, comparisons: ComparisonBuilder{Dialect: d}}
}

// Build compiles f against e, whose table is aliased t0. The empty filter
// compiles to (1=1).
func (b *WhereBuilder) Build(e *schema.Entity, f query.Filter) (sq.Sqlizer, error) {
	s := &whereScope{b: b}
	return s.build(e, rootAlias, f)
}

// whereScope carries the subquery alias counter for one Build call.
type whereScope struct {
	b       *WhereBuilder
	aliases int
}

func (s *whereScope) nextAlias() string {
	s.aliases++
	return fmt.Sprintf("t%d", s.aliases)
}

func (s *whereScope) build(e *schema.Entity, alias string, f query.Filter) (sq.Sqlizer, error) {
	var parts sq.And

	if len(f.And) > 0 {
		group, err := s.group(e, alias, f.And)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sq.And(group))
	}
	if len(f.Or) > 0 {
		group, err := s.group(e, alias, f.Or)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sq.Or(group))
	}
	for _, name := range f.FieldKeys() {
		p, err := s.field(e, alias, name, f.Fields[name])
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts, nil
}

func (s *whereScope) group(e *schema.Entity, alias string, filters []query.Filter) ([]sq.Sqlizer, error) {
	out := make([]sq.Sqlizer, 0, len(filters))
	for _, sub := range filters {
		p, err := s.build(e, alias, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *whereScope) field(e *schema.Entity, alias, name string, ff query.FieldFilter) (sq.Sqlizer, error) {
	if cmp, ok := ff.(query.Comparison); ok {
		c, err := column(e, name)
		if err != nil {
			return nil, err
		}
		col := quoteColumn(alias, c)
		ops := cmp.Operators()
		preds := make([]sq.Sqlizer, 0, len(ops))
		for _, op := range ops {
			p, err := s.b.comparisons.Build(col, op, cmp[op])
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		switch len(preds) {
		case 0:
			return sq.And{}, nil
		case 1:
			return preds[0], nil
		}
		return sq.Or(preds), nil
	}

	nested, ok := query.NestedFilter(ff)
	if !ok {
		return nil, query.NewInvalidFilterError(name, "unsupported filter for '%s': %T", name, ff)
	}
	return s.exists(e, alias, name, nested)
}

// exists compiles a nested filter on relation name into
// EXISTS (SELECT 1 FROM target AS tN WHERE tN.fk = alias.lk AND ...).
func (s *whereScope) exists(e *schema.Entity, alias, name string, nested query.Filter) (sq.Sqlizer, error) {
	rel, ok := e.Relation(name)
	if !ok {
		return nil, query.NewInvalidFilterError(name, "'%s' is not a relation of %s", name, e.Name)
	}
	if s.b.registry == nil {
		return nil, query.NewInvalidFilterError(name, "relation '%s' needs a schema registry", name)
	}
	target, ok := s.b.registry.Entity(rel.Entity)
	if !ok {
		return nil, query.NewInvalidFilterError(name, "relation '%s' targets unknown entity %s", name, rel.Entity)
	}

	sub := s.nextAlias()
	join := fmt.Sprintf("%s = %s",
		quoteColumn(sub, target.Column(rel.ForeignKey)),
		quoteColumn(alias, e.Column(rel.LocalKey)))

	subq := sq.Select("1").From(tableAs(target.TableName(), sub)).Where(join)
	if !nested.IsEmpty() {
		inner, err := s.build(target, sub, nested)
		if err != nil {
			return nil, err
		}
		subq = subq.Where(inner)
	}

	sql, args, err := subq.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("EXISTS ("+sql+")", args...), nil
}
