package memory

import (
	"github.com/roach88/querykit/internal/query"
)

// Executor is a compiled query ready to run over a record slice.
type Executor struct {
	Match   Predicate
	Sorting []query.SortField
	Paging  query.Paging
}

// Apply filters, sorts and pages records. The input slice is not modified.
func (e *Executor) Apply(records []query.Record) []query.Record {
	matched := make([]query.Record, 0, len(records))
	for _, r := range records {
		if e.Match(r) {
			matched = append(matched, r)
		}
	}
	sorted := SortBuilder{}.Sort(matched, e.Sorting)
	return PagingBuilder{}.Apply(sorted, e.Paging)
}

// AggregateExecutor is a compiled aggregate query.
type AggregateExecutor struct {
	Match     Predicate
	Aggregate query.AggregateQuery
}

// Apply filters records and aggregates the matches.
func (e *AggregateExecutor) Apply(records []query.Record) ([]query.AggregateResponse, error) {
	matched := make([]query.Record, 0, len(records))
	for _, r := range records {
		if e.Match(r) {
			matched = append(matched, r)
		}
	}
	return AggregateBuilder{}.Aggregate(matched, e.Aggregate)
}

// FilterQueryBuilder composes the where, sort, paging and aggregate builders
// into executors.
type FilterQueryBuilder struct {
	idField string
	where   *WhereBuilder
}

// NewFilterQueryBuilder creates a builder for records identified by idField.
func NewFilterQueryBuilder(idField string) *FilterQueryBuilder {
	return &FilterQueryBuilder{idField: idField, where: NewWhereBuilder()}
}

// BuildQuery compiles q.
func (b *FilterQueryBuilder) BuildQuery(q query.Query) (*Executor, error) {
	match, err := b.where.Build(q.Filter)
	if err != nil {
		return nil, err
	}
	return &Executor{Match: match, Sorting: q.Sorting, Paging: q.Paging}, nil
}

// BuildAggregateQuery compiles an aggregate over the records matching f.
func (b *FilterQueryBuilder) BuildAggregateQuery(agg query.AggregateQuery, f query.Filter) (*AggregateExecutor, error) {
	if err := agg.Check(); err != nil {
		return nil, err
	}
	match, err := b.where.Build(f)
	if err != nil {
		return nil, err
	}
	return &AggregateExecutor{Match: match, Aggregate: agg}, nil
}

// BuildIDFilterQuery compiles q restricted to the given ids.
func (b *FilterQueryBuilder) BuildIDFilterQuery(ids []any, q query.Query) (*Executor, error) {
	q.Filter = query.MergeFilter(query.IDFilter(b.idField, ids...), q.Filter)
	return b.BuildQuery(q)
}

// BuildIDAggregateQuery compiles an aggregate restricted to the given ids.
func (b *FilterQueryBuilder) BuildIDAggregateQuery(ids []any, f query.Filter, agg query.AggregateQuery) (*AggregateExecutor, error) {
	return b.BuildAggregateQuery(agg, query.MergeFilter(query.IDFilter(b.idField, ids...), f))
}
