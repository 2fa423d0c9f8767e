package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/roach88/querykit/internal/query"
)

// Query returns the records matching q, ordered by q.Sorting and then by id.
//
// Returns an empty slice (not nil) if nothing matches.
func (r *Repository) Query(ctx context.Context, q query.Query) ([]query.Record, error) {
	sb, err := r.builder.BuildQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := r.selectRows(ctx, r.store.db, sb)
	if err != nil {
		return nil, err
	}
	return r.records(rows), nil
}

// Count returns the number of records matching f.
func (r *Repository) Count(ctx context.Context, f query.Filter) (int64, error) {
	sb, err := r.builder.BuildCount(f)
	if err != nil {
		return 0, err
	}
	stmt, err := r.compile(sb)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.store.db.NewRaw(stmt.SQL, stmt.Args...).Scan(ctx, &n); err != nil {
		r.log.WithError(err).Warn("count failed")
		return 0, errors.Wrapf(err, "count %s", r.entity.TableName())
	}
	return n, nil
}

// Aggregate computes agg over the records matching f. Grouped results come
// back ordered by the group keys.
func (r *Repository) Aggregate(ctx context.Context, f query.Filter, agg query.AggregateQuery) ([]query.AggregateResponse, error) {
	sb, err := r.builder.BuildAggregateQuery(agg, f)
	if err != nil {
		return nil, err
	}
	rows, err := r.selectRows(ctx, r.store.db, sb)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
	}
	return query.ConvertToAggregateResponses(rows)
}

// FindByID returns the record with id that also matches f, or nil if there
// is none.
func (r *Repository) FindByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	return r.findByID(ctx, r.store.db, id, f)
}

func (r *Repository) findByID(ctx context.Context, db bun.IDB, id any, f query.Filter) (query.Record, error) {
	sb, err := r.builder.BuildIDFilterQuery([]any{id}, query.Query{Filter: f, Paging: query.Limit(1, 0)})
	if err != nil {
		return nil, err
	}
	rows, err := r.selectRows(ctx, db, sb)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return unmarshalRow(r.entity, rows[0]), nil
}

// GetByID is FindByID failing with NOT_FOUND when nothing matches.
func (r *Repository) GetByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	rec, err := r.FindByID(ctx, id, f)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, query.NewNotFoundError(id)
	}
	return rec, nil
}
