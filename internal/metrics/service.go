package metrics

import (
	"context"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/service"
)

// Service decorates a QueryService, timing every call and counting the
// calls that fail.
type Service struct {
	next   service.QueryService
	entity string
	c      *Collectors
}

var _ service.QueryService = (*Service)(nil)

// Instrument wraps next. entity labels the series of this service.
func Instrument(next service.QueryService, entity string, c *Collectors) *Service {
	return &Service{next: next, entity: entity, c: c}
}

// observe starts timing method; call the result deferred with the
// method's named error.
func (s *Service) observe(method string) func(*error) {
	done := Time(s.c.Seconds.WithLabelValues(s.entity, method))
	return func(err *error) {
		done()
		ErrCount(s.c.Errors.WithLabelValues(s.entity, method), err)
	}
}

// Query times next.Query.
func (s *Service) Query(ctx context.Context, q query.Query) (recs []query.Record, err error) {
	defer s.observe("query")(&err)
	return s.next.Query(ctx, q)
}

// Count times next.Count.
func (s *Service) Count(ctx context.Context, f query.Filter) (n int64, err error) {
	defer s.observe("count")(&err)
	return s.next.Count(ctx, f)
}

// Aggregate times next.Aggregate.
func (s *Service) Aggregate(ctx context.Context, f query.Filter, agg query.AggregateQuery) (rows []query.AggregateResponse, err error) {
	defer s.observe("aggregate")(&err)
	return s.next.Aggregate(ctx, f, agg)
}

// FindByID times next.FindByID. A missing record is not an error.
func (s *Service) FindByID(ctx context.Context, id any, f query.Filter) (rec query.Record, err error) {
	defer s.observe("find_by_id")(&err)
	return s.next.FindByID(ctx, id, f)
}

// GetByID times next.GetByID.
func (s *Service) GetByID(ctx context.Context, id any, f query.Filter) (rec query.Record, err error) {
	defer s.observe("get_by_id")(&err)
	return s.next.GetByID(ctx, id, f)
}

// CreateOne times next.CreateOne.
func (s *Service) CreateOne(ctx context.Context, rec query.Record) (out query.Record, err error) {
	defer s.observe("create_one")(&err)
	return s.next.CreateOne(ctx, rec)
}

// CreateMany times next.CreateMany.
func (s *Service) CreateMany(ctx context.Context, recs []query.Record) (out []query.Record, err error) {
	defer s.observe("create_many")(&err)
	return s.next.CreateMany(ctx, recs)
}

// UpdateOne times next.UpdateOne.
func (s *Service) UpdateOne(ctx context.Context, id any, update query.Record, f query.Filter) (rec query.Record, err error) {
	defer s.observe("update_one")(&err)
	return s.next.UpdateOne(ctx, id, update, f)
}

// UpdateMany times next.UpdateMany.
func (s *Service) UpdateMany(ctx context.Context, update query.Record, f query.Filter) (n int64, err error) {
	defer s.observe("update_many")(&err)
	return s.next.UpdateMany(ctx, update, f)
}

// DeleteOne times next.DeleteOne.
func (s *Service) DeleteOne(ctx context.Context, id any, f query.Filter) (rec query.Record, err error) {
	defer s.observe("delete_one")(&err)
	return s.next.DeleteOne(ctx, id, f)
}

// DeleteMany times next.DeleteMany.
func (s *Service) DeleteMany(ctx context.Context, f query.Filter) (n int64, err error) {
	defer s.observe("delete_many")(&err)
	return s.next.DeleteMany(ctx, f)
}
