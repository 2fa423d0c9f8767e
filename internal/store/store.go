package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/roach88/querykit/internal/querysql"
	"github.com/roach88/querykit/internal/schema"
)

// Store is a bun database handle plus the SQL dialect its queries compile to.
type Store struct {
	db      *bun.DB
	dialect querysql.Dialect
}

// Open connects to dsn using the driver for d.
func Open(d querysql.Dialect, dsn string) (*Store, error) {
	switch d {
	case querysql.SQLite:
		return OpenSQLite(dsn)
	case querysql.Postgres:
		return OpenPostgres(dsn)
	}
	return nil, errors.Errorf("unsupported SQL dialect %q", d)
}

// OpenSQLite creates or opens a SQLite database at path. ":memory:" gives a
// private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
//   - case-sensitive LIKE
func OpenSQLite(path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps per-connection pragmas and ":memory:" databases alive.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	if err := applyPragmas(sqldb); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "failed to apply pragmas")
	}

	return New(sqldb, querysql.SQLite), nil
}

// OpenPostgres connects to a PostgreSQL database.
func OpenPostgres(dsn string) (*Store, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return New(sqldb, querysql.Postgres), nil
}

// New wraps an existing connection pool.
func New(sqldb *sql.DB, d querysql.Dialect) *Store {
	var db *bun.DB
	if d == querysql.Postgres {
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}
	return &Store{db: db, dialect: d}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying bun database.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Dialect returns the SQL dialect of the connection.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}

	return nil
}

// CreateTable creates the table for e if it does not exist. Columns are
// derived from the field types; the id field is the primary key. It is meant
// for scratch databases, not for managing production schemas.
func (s *Store) CreateTable(ctx context.Context, e *schema.Entity) error {
	var cols []string
	for _, name := range e.FieldNames() {
		f, _ := e.Field(name)
		col := fmt.Sprintf("%q %s", f.ColumnName(), s.columnType(f.Type))
		if name == e.IDField {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return errors.Errorf("create table %s: entity declares no fields", e.TableName())
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", e.TableName(), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create table %s", e.TableName())
	}
	return nil
}

func (s *Store) columnType(t schema.FieldType) string {
	switch t {
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeNumber:
		if s.dialect == querysql.Postgres {
			return "DOUBLE PRECISION"
		}
		return "NUMERIC"
	case schema.TypeTime:
		return "TIMESTAMP"
	}
	return "TEXT"
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return errors.Wrapf(err, "failed to query %s", name)
	}
	if value != expected {
		return errors.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
