package querysql

import (
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// TableEntity describes a bare table with no declared fields. Field names
// are used as column names and the id column is "id".
func TableEntity(table string) *schema.Entity {
	return &schema.Entity{Name: table, Table: table, IDField: "id"}
}

// FilterQueryBuilder composes the where, sort, paging and aggregate builders
// into statements over one entity's table.
type FilterQueryBuilder struct {
	entity    *schema.Entity
	where     *WhereBuilder
	sort      SortBuilder
	paging    PagingBuilder
	aggregate AggregateBuilder
}

// NewFilterQueryBuilder creates a builder for e. registry resolves relation
// targets for nested filters and may be nil.
func NewFilterQueryBuilder(d Dialect, registry *schema.Registry, e *schema.Entity) *FilterQueryBuilder {
	return &FilterQueryBuilder{
		entity: e,
		where:  NewWhereBuilder(d, registry),
		paging: PagingBuilder{Dialect: d},
	}
}

// Entity returns the entity the builder compiles against.
func (b *FilterQueryBuilder) Entity() *schema.Entity {
	return b.entity
}

func (b *FilterQueryBuilder) from() string {
	return tableAs(b.entity.TableName(), rootAlias)
}

// columns selects every declared field under its field name, or t0.* when
// the entity declares none.
func (b *FilterQueryBuilder) columns() []string {
	names := b.entity.FieldNames()
	if len(names) == 0 {
		return []string{quote(rootAlias) + ".*"}
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		column := b.entity.Column(name)
		if column == name {
			out = append(out, quoteColumn(rootAlias, column))
			continue
		}
		out = append(out, fmt.Sprintf("%s AS %s", quoteColumn(rootAlias, column), quote(name)))
	}
	return out
}

// hasIDColumn reports whether the id field is declared, so it can be used as
// a tiebreaker and as the row key for writes.
func (b *FilterQueryBuilder) hasIDColumn() bool {
	_, ok := b.entity.Field(b.entity.IDField)
	return ok || len(b.entity.Fields) == 0
}

func (b *FilterQueryBuilder) filtered(sb sq.SelectBuilder, f query.Filter) (sq.SelectBuilder, error) {
	if f.IsEmpty() {
		return sb, nil
	}
	where, err := b.where.Build(b.entity, f)
	if err != nil {
		return sb, err
	}
	return sb.Where(where), nil
}

// orderBy appends the id as a final ascending key so equal sort keys come
// back in a stable order.
func (b *FilterQueryBuilder) orderBy(sorting []query.SortField) ([]string, error) {
	terms, err := b.sort.Build(b.entity, rootAlias, sorting)
	if err != nil {
		return nil, err
	}
	if len(b.entity.Fields) == 0 {
		return terms, nil
	}
	if _, ok := b.entity.Field(b.entity.IDField); !ok {
		return terms, nil
	}
	for _, s := range sorting {
		if s.Field == b.entity.IDField {
			return terms, nil
		}
	}
	return append(terms, fmt.Sprintf("%s ASC", quoteColumn(rootAlias, b.entity.Column(b.entity.IDField)))), nil
}

// BuildQuery compiles q into a SELECT.
func (b *FilterQueryBuilder) BuildQuery(q query.Query) (sq.SelectBuilder, error) {
	if err := checkTable(b.entity); err != nil {
		return sq.SelectBuilder{}, err
	}
	sb, err := b.filtered(sq.Select(b.columns()...).From(b.from()), q.Filter)
	if err != nil {
		return sb, err
	}
	terms, err := b.orderBy(q.Sorting)
	if err != nil {
		return sb, err
	}
	sb = sb.OrderBy(terms...)
	return b.paging.Apply(sb, q.Paging), nil
}

// BuildCount compiles a COUNT(*) over the rows matching f. The count column
// is aliased "count".
func (b *FilterQueryBuilder) BuildCount(f query.Filter) (sq.SelectBuilder, error) {
	if err := checkTable(b.entity); err != nil {
		return sq.SelectBuilder{}, err
	}
	return b.filtered(sq.Select("COUNT(*) AS "+quote("count")).From(b.from()), f)
}

// BuildAggregateQuery compiles agg over the rows matching f.
func (b *FilterQueryBuilder) BuildAggregateQuery(agg query.AggregateQuery, f query.Filter) (sq.SelectBuilder, error) {
	if err := checkTable(b.entity); err != nil {
		return sq.SelectBuilder{}, err
	}
	sel, err := b.aggregate.Build(b.entity, rootAlias, agg)
	if err != nil {
		return sq.SelectBuilder{}, err
	}
	sb, err := b.filtered(sq.Select(sel.Columns...).From(b.from()), f)
	if err != nil {
		return sb, err
	}
	if len(sel.GroupBy) > 0 {
		sb = sb.GroupBy(sel.GroupBy...).OrderBy(sel.OrderBy...)
	}
	return sb, nil
}

// BuildIDFilterQuery compiles q restricted to the given ids.
func (b *FilterQueryBuilder) BuildIDFilterQuery(ids []any, q query.Query) (sq.SelectBuilder, error) {
	q.Filter = query.MergeFilter(query.IDFilter(b.entity.IDField, ids...), q.Filter)
	return b.BuildQuery(q)
}

// BuildIDAggregateQuery compiles agg restricted to the given ids.
func (b *FilterQueryBuilder) BuildIDAggregateQuery(ids []any, f query.Filter, agg query.AggregateQuery) (sq.SelectBuilder, error) {
	return b.BuildAggregateQuery(agg, query.MergeFilter(query.IDFilter(b.entity.IDField, ids...), f))
}

// writable returns the fields of rec that map to columns, sorted by name.
// With no declared fields every key is writable.
func (b *FilterQueryBuilder) writable(rec query.Record, skipID bool) []string {
	names := make([]string, 0, len(rec))
	for name := range rec {
		if skipID && name == b.entity.IDField {
			continue
		}
		if len(b.entity.Fields) > 0 {
			if _, ok := b.entity.Field(name); !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildInsert compiles an INSERT of rec. Keys that are not declared fields
// are ignored.
func (b *FilterQueryBuilder) BuildInsert(rec query.Record) (sq.InsertBuilder, error) {
	names := b.writable(rec, false)
	if len(names) == 0 {
		return sq.InsertBuilder{}, errors.Errorf("insert into %s: no writable fields", b.entity.TableName())
	}
	if err := checkTable(b.entity); err != nil {
		return sq.InsertBuilder{}, err
	}
	columns := make([]string, len(names))
	values := make([]any, len(names))
	for i, name := range names {
		c, err := column(b.entity, name)
		if err != nil {
			return sq.InsertBuilder{}, err
		}
		columns[i] = quote(c)
		values[i] = rec[name]
	}
	return sq.Insert(quote(b.entity.TableName())).Columns(columns...).Values(values...), nil
}

// matching restricts a write to the rows matching f by selecting their ids,
// so nested relation filters work in UPDATE and DELETE on every dialect.
func (b *FilterQueryBuilder) matching(f query.Filter) (sq.Sqlizer, error) {
	if !b.hasIDColumn() {
		return nil, errors.Errorf("%s has no id field %q", b.entity.Name, b.entity.IDField)
	}
	idColumn := b.entity.Column(b.entity.IDField)
	sub, err := b.filtered(sq.Select(quoteColumn(rootAlias, idColumn)).From(b.from()), f)
	if err != nil {
		return nil, err
	}
	sql, args, err := sub.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr(quote(idColumn)+" IN ("+sql+")", args...), nil
}

// BuildUpdate compiles an UPDATE setting update on the rows matching f.
// The id field is never written.
func (b *FilterQueryBuilder) BuildUpdate(update query.Record, f query.Filter) (sq.UpdateBuilder, error) {
	names := b.writable(update, true)
	if len(names) == 0 {
		return sq.UpdateBuilder{}, errors.Errorf("update %s: no writable fields", b.entity.TableName())
	}
	if err := checkTable(b.entity); err != nil {
		return sq.UpdateBuilder{}, err
	}
	set := make(map[string]any, len(names))
	for _, name := range names {
		c, err := column(b.entity, name)
		if err != nil {
			return sq.UpdateBuilder{}, err
		}
		set[quote(c)] = update[name]
	}
	ub := sq.Update(quote(b.entity.TableName())).SetMap(set)
	if f.IsEmpty() {
		return ub, nil
	}
	where, err := b.matching(f)
	if err != nil {
		return ub, err
	}
	return ub.Where(where), nil
}

// BuildDelete compiles a DELETE of the rows matching f.
func (b *FilterQueryBuilder) BuildDelete(f query.Filter) (sq.DeleteBuilder, error) {
	if err := checkTable(b.entity); err != nil {
		return sq.DeleteBuilder{}, err
	}
	db := sq.Delete(quote(b.entity.TableName()))
	if f.IsEmpty() {
		return db, nil
	}
	where, err := b.matching(f)
	if err != nil {
		return db, err
	}
	return db.Where(where), nil
}
