// Package querysql compiles querykit filters, sorts, paging and aggregates
// into SQL using squirrel.
//
// All values are bound as parameters, never interpolated. Identifiers are
// always double-quoted so mixed-case field aliases survive on PostgreSQL.
// Statements use "?" placeholders; Statement.Text rewrites them for display
// in the target dialect.
package querysql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// Dialect selects the SQL flavour emitted by the builders.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect resolves a dialect name. Common driver aliases are accepted.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	}
	return "", errors.Errorf("unsupported SQL dialect %q", name)
}

// Placeholder returns the bind-parameter format native to d.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

// rootAlias is the alias of the queried table. Relation subqueries are
// aliased t1, t2, ... in the order they are compiled.
const rootAlias = "t0"

// column resolves the column of field name on e. Quoting does not hide a
// "?" from placeholder rewriting, so names holding one are rejected.
func column(e *schema.Entity, name string) (string, error) {
	c := e.Column(name)
	if strings.Contains(c, "?") {
		return "", query.NewInvalidFilterError(name, "field name '%s' must not contain '?'", name)
	}
	return c, nil
}

// checkTable rejects table names that column would reject as field names.
func checkTable(e *schema.Entity) error {
	if strings.Contains(e.TableName(), "?") {
		return errors.Errorf("table name %q must not contain '?'", e.TableName())
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// quoteColumn returns "alias"."column", or "column" when alias is empty.
func quoteColumn(alias, column string) string {
	if alias == "" {
		return quote(column)
	}
	return quote(alias) + "." + quote(column)
}

func tableAs(table, alias string) string {
	return fmt.Sprintf("%s AS %s", quote(table), quote(alias))
}

// Statement is compiled SQL with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Compile renders s into a Statement.
func Compile(s sq.Sqlizer) (Statement, error) {
	sql, args, err := s.ToSql()
	if err != nil {
		return Statement{}, errors.Wrap(err, "compile sql")
	}
	return Statement{SQL: sql, Args: args}, nil
}

// Text renders the statement with d's placeholders.
func (s Statement) Text(d Dialect) (string, error) {
	return d.Placeholder().ReplacePlaceholders(s.SQL)
}
