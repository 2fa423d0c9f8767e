package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roach88/querykit/internal/query"
)

// Service is an in-memory record store answering queries with the memory
// builders. It is safe for concurrent use.
type Service struct {
	mu      sync.RWMutex
	records []query.Record
	idField string
	newID   func() string
	builder *FilterQueryBuilder
	log     logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithRecords seeds the service. Records are copied.
func WithRecords(records []query.Record) Option {
	return func(s *Service) {
		for _, r := range records {
			s.records = append(s.records, copyRecord(r))
		}
	}
}

// WithIDGenerator replaces the uuid generator used by CreateOne.
func WithIDGenerator(next func() string) Option {
	return func(s *Service) { s.newID = next }
}

// WithLogger sets the logger queries and rejected writes are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a Service whose records are identified by idField.
func NewService(idField string, opts ...Option) *Service {
	s := &Service{
		idField: idField,
		newID:   func() string { return uuid.NewString() },
		builder: NewFilterQueryBuilder(idField),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithFields(logrus.Fields{"component": "memory", "id_field": idField})
	return s
}

func copyRecord(r query.Record) query.Record {
	if r == nil {
		return nil
	}
	out := make(query.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func copyRecords(records []query.Record) []query.Record {
	out := make([]query.Record, len(records))
	for i, r := range records {
		out[i] = copyRecord(r)
	}
	return out
}

// Query returns the records matching q.
func (s *Service) Query(_ context.Context, q query.Query) ([]query.Record, error) {
	exec, err := s.builder.BuildQuery(q)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.log.WithFields(logrus.Fields{"fields": q.Filter.FieldNames(), "records": len(s.records)}).Debug("running query")
	return copyRecords(exec.Apply(s.records)), nil
}

// Count returns the number of records matching f.
func (s *Service) Count(_ context.Context, f query.Filter) (int64, error) {
	match, err := s.builder.where.Build(f)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.records {
		if match(r) {
			n++
		}
	}
	return n, nil
}

// Aggregate computes agg over the records matching f.
func (s *Service) Aggregate(_ context.Context, f query.Filter, agg query.AggregateQuery) ([]query.AggregateResponse, error) {
	exec, err := s.builder.BuildAggregateQuery(agg, f)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exec.Apply(s.records)
}

// FindByID returns the record with id that also matches f, or nil.
func (s *Service) FindByID(_ context.Context, id any, f query.Filter) (query.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, err := s.indexOf(id, f)
	if err != nil || i < 0 {
		return nil, err
	}
	return copyRecord(s.records[i]), nil
}

// GetByID is FindByID failing with NOT_FOUND when nothing matches.
func (s *Service) GetByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	rec, err := s.FindByID(ctx, id, f)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, query.NewNotFoundError(id)
	}
	return rec, nil
}

// indexOf locates the record with id matching f. Callers hold s.mu.
func (s *Service) indexOf(id any, f query.Filter) (int, error) {
	match, err := s.builder.where.Build(query.MergeFilter(query.IDFilter(s.idField, id), f))
	if err != nil {
		return -1, err
	}
	for i, r := range s.records {
		if match(r) {
			return i, nil
		}
	}
	return -1, nil
}

// CreateOne stores rec, assigning an id when it has none.
func (s *Service) CreateOne(_ context.Context, rec query.Record) (query.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := s.insert(rec)
	if err != nil {
		s.log.WithError(err).Warn("create rejected")
		return nil, err
	}
	return copyRecord(created), nil
}

// CreateMany stores every record or none of them.
func (s *Service) CreateMany(_ context.Context, recs []query.Record) ([]query.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.records)
	out := make([]query.Record, 0, len(recs))
	for _, rec := range recs {
		created, err := s.insert(rec)
		if err != nil {
			s.records = s.records[:before]
			s.log.WithError(err).Warn("create many rolled back")
			return nil, err
		}
		out = append(out, copyRecord(created))
	}
	return out, nil
}

func (s *Service) insert(rec query.Record) (query.Record, error) {
	created := copyRecord(rec)
	if created == nil {
		created = query.Record{}
	}
	id, ok := created[s.idField]
	if !ok || id == nil {
		id = s.newID()
		created[s.idField] = id
	}
	if i, _ := s.indexOf(id, query.Filter{}); i >= 0 {
		return nil, errors.Errorf("record with %s %v already exists", s.idField, id)
	}
	s.records = append(s.records, created)
	return created, nil
}

// UpdateOne merges update into the record with id matching f. The id
// itself cannot be changed.
func (s *Service) UpdateOne(_ context.Context, id any, update query.Record, f query.Filter) (query.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.indexOf(id, f)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, query.NewNotFoundError(id)
	}
	s.records[i] = s.merge(s.records[i], update)
	return copyRecord(s.records[i]), nil
}

// UpdateMany merges update into every record matching f.
func (s *Service) UpdateMany(_ context.Context, update query.Record, f query.Filter) (int64, error) {
	match, err := s.builder.where.Build(f)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i, r := range s.records {
		if match(r) {
			s.records[i] = s.merge(r, update)
			n++
		}
	}
	return n, nil
}

func (s *Service) merge(r, update query.Record) query.Record {
	out := copyRecord(r)
	for k, v := range update {
		if k == s.idField {
			continue
		}
		out[k] = v
	}
	return out
}

// DeleteOne removes and returns the record with id matching f.
func (s *Service) DeleteOne(_ context.Context, id any, f query.Filter) (query.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.indexOf(id, f)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, query.NewNotFoundError(id)
	}
	deleted := s.records[i]
	s.records = append(s.records[:i:i], s.records[i+1:]...)
	return deleted, nil
}

// DeleteMany removes every record matching f.
func (s *Service) DeleteMany(_ context.Context, f query.Filter) (int64, error) {
	match, err := s.builder.where.Build(f)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0:0]
	var n int64
	for _, r := range s.records {
		if match(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}
