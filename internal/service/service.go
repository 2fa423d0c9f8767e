// Package service defines the QueryService contract every backend
// implements, and the services layered on top of it: relation-scoped batch
// reads and field-name translation between DTOs and entities.
package service

import (
	"context"

	"github.com/roach88/querykit/internal/document"
	"github.com/roach88/querykit/internal/memory"
	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/store"
)

// QueryService reads and writes the records of one entity.
//
// FindByID returns (nil, nil) when no record has the id or the record does
// not match the filter; GetByID fails with NOT_FOUND instead. UpdateOne and
// DeleteOne fail with NOT_FOUND too. The filter passed to the id-based
// operations is an additional constraint, typically an authorization filter.
type QueryService interface {
	Query(ctx context.Context, q query.Query) ([]query.Record, error)
	Count(ctx context.Context, f query.Filter) (int64, error)
	Aggregate(ctx context.Context, f query.Filter, agg query.AggregateQuery) ([]query.AggregateResponse, error)

	FindByID(ctx context.Context, id any, f query.Filter) (query.Record, error)
	GetByID(ctx context.Context, id any, f query.Filter) (query.Record, error)

	CreateOne(ctx context.Context, rec query.Record) (query.Record, error)
	CreateMany(ctx context.Context, recs []query.Record) ([]query.Record, error)
	UpdateOne(ctx context.Context, id any, update query.Record, f query.Filter) (query.Record, error)
	UpdateMany(ctx context.Context, update query.Record, f query.Filter) (int64, error)
	DeleteOne(ctx context.Context, id any, f query.Filter) (query.Record, error)
	DeleteMany(ctx context.Context, f query.Filter) (int64, error)
}

var (
	_ QueryService = (*memory.Service)(nil)
	_ QueryService = (*store.Repository)(nil)
	_ QueryService = (*document.Service)(nil)
	_ QueryService = (*AssemblerService)(nil)
)
