package service

import (
	"context"

	"github.com/roach88/querykit/internal/query"
)

// AssemblerService exposes a QueryService that speaks entity field names
// under DTO field names. Filters, orderings and aggregate queries are
// renamed on the way in; records and aggregate responses on the way out.
// A DTO field without a mapping fails with UNMAPPED_FIELD before the
// backend is called. Record keys without a mapping are dropped in both
// directions.
type AssemblerService struct {
	svc      QueryService
	toEntity query.QueryFieldMap
	toDTO    query.QueryFieldMap
}

// NewAssemblerService wraps svc. fieldMap maps DTO field names to entity
// field names.
func NewAssemblerService(svc QueryService, fieldMap query.QueryFieldMap) *AssemblerService {
	return &AssemblerService{
		svc:      svc,
		toEntity: fieldMap,
		toDTO:    fieldMap.Invert(),
	}
}

func (a *AssemblerService) filter(f query.Filter) (query.Filter, error) {
	return query.TransformFilter(f, a.toEntity)
}

func (a *AssemblerService) dto(rec query.Record) query.Record {
	return query.TransformRecord(rec, a.toDTO)
}

func (a *AssemblerService) dtos(recs []query.Record) []query.Record {
	if recs == nil {
		return nil
	}
	out := make([]query.Record, len(recs))
	for i, r := range recs {
		out[i] = a.dto(r)
	}
	return out
}

func (a *AssemblerService) Query(ctx context.Context, q query.Query) ([]query.Record, error) {
	eq, err := query.TransformQuery(q, a.toEntity)
	if err != nil {
		return nil, err
	}
	recs, err := a.svc.Query(ctx, eq)
	if err != nil {
		return nil, err
	}
	return a.dtos(recs), nil
}

func (a *AssemblerService) Count(ctx context.Context, f query.Filter) (int64, error) {
	ef, err := a.filter(f)
	if err != nil {
		return 0, err
	}
	return a.svc.Count(ctx, ef)
}

func (a *AssemblerService) Aggregate(ctx context.Context, f query.Filter, agg query.AggregateQuery) ([]query.AggregateResponse, error) {
	ef, err := a.filter(f)
	if err != nil {
		return nil, err
	}
	eagg, err := query.TransformAggregateQuery(agg, a.toEntity)
	if err != nil {
		return nil, err
	}
	rows, err := a.svc.Aggregate(ctx, ef, eagg)
	if err != nil {
		return nil, err
	}
	out := make([]query.AggregateResponse, len(rows))
	for i, r := range rows {
		if out[i], err = query.TransformAggregateResponse(r, a.toDTO); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *AssemblerService) FindByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	ef, err := a.filter(f)
	if err != nil {
		return nil, err
	}
	rec, err := a.svc.FindByID(ctx, id, ef)
	if err != nil {
		return nil, err
	}
	return a.dto(rec), nil
}

func (a *AssemblerService) GetByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	ef, err := a.filter(f)
	if err != nil {
		return nil, err
	}
	rec, err := a.svc.GetByID(ctx, id, ef)
	if err != nil {
		return nil, err
	}
	return a.dto(rec), nil
}

func (a *AssemblerService) CreateOne(ctx context.Context, rec query.Record) (query.Record, error) {
	created, err := a.svc.CreateOne(ctx, query.TransformRecord(rec, a.toEntity))
	if err != nil {
		return nil, err
	}
	return a.dto(created), nil
}

func (a *AssemblerService) CreateMany(ctx context.Context, recs []query.Record) ([]query.Record, error) {
	in := make([]query.Record, len(recs))
	for i, r := range recs {
		in[i] = query.TransformRecord(r, a.toEntity)
	}
	created, err := a.svc.CreateMany(ctx, in)
	if err != nil {
		return nil, err
	}
	return a.dtos(created), nil
}

func (a *AssemblerService) UpdateOne(ctx context.Context, id any, update query.Record, f query.Filter) (query.Record, error) {
	ef, err := a.filter(f)
	if err != nil {
		return nil, err
	}
	rec, err := a.svc.UpdateOne(ctx, id, query.TransformRecord(update, a.toEntity), ef)
	if err != nil {
		return nil, err
	}
	return a.dto(rec), nil
}

func (a *AssemblerService) UpdateMany(ctx context.Context, update query.Record, f query.Filter) (int64, error) {
	ef, err := a.filter(f)
	if err != nil {
		return 0, err
	}
	return a.svc.UpdateMany(ctx, query.TransformRecord(update, a.toEntity), ef)
}

func (a *AssemblerService) DeleteOne(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	ef, err := a.filter(f)
	if err != nil {
		return nil, err
	}
	rec, err := a.svc.DeleteOne(ctx, id, ef)
	if err != nil {
		return nil, err
	}
	return a.dto(rec), nil
}

func (a *AssemblerService) DeleteMany(ctx context.Context, f query.Filter) (int64, error) {
	ef, err := a.filter(f)
	if err != nil {
		return 0, err
	}
	return a.svc.DeleteMany(ctx, ef)
}
