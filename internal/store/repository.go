package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/querysql"
	"github.com/roach88/querykit/internal/schema"
)

// Repository answers queries for one entity against its table.
type Repository struct {
	store   *Store
	entity  *schema.Entity
	builder *querysql.FilterQueryBuilder
	log     logrus.FieldLogger
	newID   func() string
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger native queries are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Repository) { r.log = log }
}

// WithIDGenerator replaces the uuid generator used by CreateOne.
func WithIDGenerator(next func() string) Option {
	return func(r *Repository) { r.newID = next }
}

// NewRepository creates a Repository for the named entity of registry.
func NewRepository(s *Store, registry *schema.Registry, entityName string, opts ...Option) (*Repository, error) {
	if registry == nil {
		return nil, errors.New("new repository: nil registry")
	}
	e, ok := registry.Entity(entityName)
	if !ok {
		return nil, errors.Errorf("new repository: unknown entity %q", entityName)
	}
	return newRepository(s, registry, e, opts...), nil
}

// NewTableRepository creates a Repository over a bare table whose columns
// are named like the record fields and whose key is "id".
func NewTableRepository(s *Store, table string, opts ...Option) *Repository {
	return newRepository(s, nil, querysql.TableEntity(table), opts...)
}

func newRepository(s *Store, registry *schema.Registry, e *schema.Entity, opts ...Option) *Repository {
	r := &Repository{
		store:   s,
		entity:  e,
		builder: querysql.NewFilterQueryBuilder(s.Dialect(), registry, e),
		log:     logrus.StandardLogger(),
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithFields(logrus.Fields{
		"component": "store",
		"table":     e.TableName(),
	})
	return r
}

// Entity returns the entity the repository serves.
func (r *Repository) Entity() *schema.Entity {
	return r.entity
}

func (r *Repository) compile(sb sq.Sqlizer) (querysql.Statement, error) {
	stmt, err := querysql.Compile(sb)
	if err != nil {
		return stmt, err
	}
	r.log.WithFields(logrus.Fields{"sql": stmt.SQL, "args": stmt.Args}).Debug("running query")
	return stmt, nil
}

// selectRows runs a SELECT and returns its rows as column maps.
func (r *Repository) selectRows(ctx context.Context, db bun.IDB, sb sq.Sqlizer) ([]map[string]any, error) {
	stmt, err := r.compile(sb)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := db.NewRaw(stmt.SQL, stmt.Args...).Scan(ctx, &rows); err != nil {
		r.log.WithError(err).Warn("query failed")
		return nil, errors.Wrapf(err, "select from %s", r.entity.TableName())
	}
	return rows, nil
}

// exec runs a write statement and returns the number of affected rows.
func (r *Repository) exec(ctx context.Context, db bun.IDB, sb sq.Sqlizer) (int64, error) {
	stmt, err := r.compile(sb)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		r.log.WithError(err).Warn("statement failed")
		return 0, errors.Wrapf(err, "write %s", r.entity.TableName())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

func (r *Repository) records(rows []map[string]any) []query.Record {
	out := make([]query.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, unmarshalRow(r.entity, row))
	}
	return out
}

// hasWritable reports whether update sets any column besides the id.
func (r *Repository) hasWritable(update query.Record) bool {
	for name := range update {
		if name == r.entity.IDField {
			continue
		}
		if len(r.entity.Fields) == 0 {
			return true
		}
		if _, ok := r.entity.Field(name); ok {
			return true
		}
	}
	return false
}
