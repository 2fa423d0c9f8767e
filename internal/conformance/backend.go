package conformance

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/roach88/querykit/internal/logger"
	"github.com/roach88/querykit/internal/memory"
	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
	"github.com/roach88/querykit/internal/service"
	"github.com/roach88/querykit/internal/store"
)

// Services maps entity names to the service answering for them.
type Services map[string]service.QueryService

// Backend seeds a fresh, isolated instance of one query backend.
type Backend interface {
	Name() string

	// Open creates a service for every entity of registry, seeded with
	// fixtures. The returned function releases the instance.
	Open(ctx context.Context, registry *schema.Registry, fixtures map[string][]query.Record) (Services, func() error, error)
}

// DefaultBackends returns the backends that need no external server.
func DefaultBackends() []Backend {
	return []Backend{MemoryBackend{}, SQLiteBackend{}}
}

func discardLogger() logrus.FieldLogger {
	log, err := logger.New(logger.Config{Level: "error"}, io.Discard)
	if err != nil {
		return logrus.StandardLogger()
	}
	return log
}

// MemoryBackend serves fixtures from in-memory services. Related records are
// embedded one level deep under each relation name so nested filters can
// traverse them: a list for to-many relations, a record or nil otherwise.
type MemoryBackend struct{}

// Name implements Backend.
func (MemoryBackend) Name() string { return "memory" }

// Open implements Backend.
func (MemoryBackend) Open(_ context.Context, registry *schema.Registry, fixtures map[string][]query.Record) (Services, func() error, error) {
	log := discardLogger()
	services := make(Services)
	for _, name := range registry.EntityNames() {
		e, _ := registry.Entity(name)
		records, err := embedRelations(registry, e, fixtures)
		if err != nil {
			return nil, nil, err
		}
		services[name] = memory.NewService(e.IDField, memory.WithRecords(records), memory.WithLogger(log))
	}
	return services, func() error { return nil }, nil
}

func embedRelations(registry *schema.Registry, e *schema.Entity, fixtures map[string][]query.Record) ([]query.Record, error) {
	out := make([]query.Record, 0, len(fixtures[e.Name]))
	for _, rec := range fixtures[e.Name] {
		embedded := make(query.Record, len(rec)+len(e.Relations))
		for k, v := range rec {
			embedded[k] = v
		}
		for name, rel := range e.Relations {
			if _, ok := registry.Entity(rel.Entity); !ok {
				return nil, errors.Errorf("relation %s.%s targets unknown entity %s", e.Name, name, rel.Entity)
			}
			embedded[name] = related(rec[rel.LocalKey], rel, fixtures[rel.Entity])
		}
		out = append(out, embedded)
	}
	return out, nil
}

func related(key any, rel schema.Relation, candidates []query.Record) any {
	var matches []any
	for _, c := range candidates {
		if key != nil && c[rel.ForeignKey] == key {
			cp := make(query.Record, len(c))
			for k, v := range c {
				cp[k] = v
			}
			matches = append(matches, cp)
		}
	}
	if rel.Many {
		return matches
	}
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// SQLiteBackend serves fixtures from a private in-memory SQLite database
// holding one table per entity.
type SQLiteBackend struct{}

// Name implements Backend.
func (SQLiteBackend) Name() string { return "sqlite" }

// Open implements Backend.
func (SQLiteBackend) Open(ctx context.Context, registry *schema.Registry, fixtures map[string][]query.Record) (Services, func() error, error) {
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		return nil, nil, err
	}

	services, err := seedSQL(ctx, s, registry, fixtures)
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		return nil, nil, err
	}
	return services, s.Close, nil
}

func seedSQL(ctx context.Context, s *store.Store, registry *schema.Registry, fixtures map[string][]query.Record) (Services, error) {
	log := discardLogger()
	services := make(Services)
	for _, name := range registry.EntityNames() {
		e, _ := registry.Entity(name)
		if err := s.CreateTable(ctx, e); err != nil {
			return nil, err
		}
		repo, err := store.NewRepository(s, registry, name, store.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if recs := fixtures[name]; len(recs) > 0 {
			if _, err := repo.CreateMany(ctx, recs); err != nil {
				return nil, errors.Wrapf(err, "seed %s", name)
			}
		}
		services[name] = repo
	}
	return services, nil
}
