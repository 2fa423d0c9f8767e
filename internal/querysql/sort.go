package querysql

import (
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// SortBuilder compiles sort fields into ORDER BY terms. Null placement is
// always explicit so every dialect orders nulls the same way.
type SortBuilder struct{}

// Build returns one ORDER BY term per sort field.
func (SortBuilder) Build(e *schema.Entity, alias string, sorting []query.SortField) ([]string, error) {
	out := make([]string, 0, len(sorting))
	for _, s := range sorting {
		c, err := column(e, s.Field)
		if err != nil {
			return nil, err
		}
		out = append(out, orderTerm(quoteColumn(alias, c), s))
	}
	return out, nil
}

func orderTerm(column string, s query.SortField) string {
	dir := "ASC"
	if s.Descending() {
		dir = "DESC"
	}
	nulls := "NULLS LAST"
	if s.NullsFirst() {
		nulls = "NULLS FIRST"
	}
	return fmt.Sprintf("%s %s %s", column, dir, nulls)
}

// PagingBuilder applies a result window to a select.
type PagingBuilder struct {
	Dialect Dialect
}

// Apply adds LIMIT and OFFSET. Negative values are clamped to zero.
func (b PagingBuilder) Apply(sb sq.SelectBuilder, p query.Paging) sq.SelectBuilder {
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	switch {
	case p.Limit != nil:
		limit := *p.Limit
		if limit < 0 {
			limit = 0
		}
		sb = sb.Limit(uint64(limit))
	case offset > 0 && b.Dialect == SQLite:
		// SQLite rejects OFFSET without LIMIT.
		sb = sb.Limit(math.MaxInt64)
	}

	if offset > 0 {
		sb = sb.Offset(uint64(offset))
	}
	return sb
}
