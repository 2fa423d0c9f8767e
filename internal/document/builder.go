package document

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/querykit/internal/query"
)

// FilterQueryBuilder composes the where, sort, paging and aggregate builders
// into aggregation pipelines over one collection.
type FilterQueryBuilder struct {
	idField   string
	where     *WhereBuilder
	sort      SortBuilder
	paging    PagingBuilder
	aggregate AggregateBuilder
}

// NewFilterQueryBuilder creates a builder for documents keyed by idField.
// The id field and objectIDFields have their values coerced to ObjectIDs.
func NewFilterQueryBuilder(idField string, objectIDFields ...string) *FilterQueryBuilder {
	return &FilterQueryBuilder{
		idField: idField,
		where:   NewWhereBuilder(append([]string{idField}, objectIDFields...)...),
	}
}

// BuildFilter compiles f into a filter document.
func (b *FilterQueryBuilder) BuildFilter(f query.Filter) (bson.M, error) {
	return b.where.Build(f)
}

func (b *FilterQueryBuilder) match(f query.Filter) (mongo.Pipeline, error) {
	doc, err := b.where.Build(f)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return nil, nil
	}
	return mongo.Pipeline{{{Key: "$match", Value: doc}}}, nil
}

// BuildQuery compiles q into a pipeline: $match, ordering with the id as
// the final key, then $skip and $limit.
func (b *FilterQueryBuilder) BuildQuery(q query.Query) (mongo.Pipeline, error) {
	stages, err := b.match(q.Filter)
	if err != nil {
		return nil, err
	}
	stages = append(stages, b.sort.Stages(q.Sorting, b.idField)...)
	stages = append(stages, b.paging.Stages(q.Paging)...)
	return stages, nil
}

// BuildAggregateQuery compiles agg over the documents matching f.
func (b *FilterQueryBuilder) BuildAggregateQuery(agg query.AggregateQuery, f query.Filter) (mongo.Pipeline, error) {
	group, err := b.aggregate.Stages(agg)
	if err != nil {
		return nil, err
	}
	stages, err := b.match(f)
	if err != nil {
		return nil, err
	}
	return append(stages, group...), nil
}

// BuildIDFilterQuery compiles q restricted to the given ids.
func (b *FilterQueryBuilder) BuildIDFilterQuery(ids []any, q query.Query) (mongo.Pipeline, error) {
	q.Filter = query.MergeFilter(query.IDFilter(b.idField, ids...), q.Filter)
	return b.BuildQuery(q)
}

// BuildIDAggregateQuery compiles agg restricted to the given ids.
func (b *FilterQueryBuilder) BuildIDAggregateQuery(ids []any, f query.Filter, agg query.AggregateQuery) (mongo.Pipeline, error) {
	return b.BuildAggregateQuery(agg, query.MergeFilter(query.IDFilter(b.idField, ids...), f))
}
