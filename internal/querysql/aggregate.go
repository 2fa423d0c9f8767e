package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// AggregateSelect is the select list, GROUP BY and default ORDER BY of an
// aggregate query.
type AggregateSelect struct {
	Columns []string
	GroupBy []string
	OrderBy []string
}

// AggregateBuilder compiles an AggregateQuery into aliased select columns.
// Aliases follow query.AggregateAlias; group keys use the groupBy_ prefix.
type AggregateBuilder struct{}

// Build compiles q against e aliased as alias. Groups are ordered by their
// keys ascending with nulls last.
func (AggregateBuilder) Build(e *schema.Entity, alias string, q query.AggregateQuery) (AggregateSelect, error) {
	if err := q.Check(); err != nil {
		return AggregateSelect{}, err
	}

	var out AggregateSelect
	for _, field := range q.GroupBy {
		c, err := column(e, field)
		if err != nil {
			return AggregateSelect{}, err
		}
		col := quoteColumn(alias, c)
		out.Columns = append(out.Columns, fmt.Sprintf("%s AS %s", col, quote(query.AggregateAlias(query.FuncGroupBy, field))))
		out.GroupBy = append(out.GroupBy, col)
		out.OrderBy = append(out.OrderBy, orderTerm(col, query.SortField{Field: field, Direction: query.ASC}))
	}
	for _, sel := range q.Selections() {
		c, err := column(e, sel.Field)
		if err != nil {
			return AggregateSelect{}, err
		}
		col := quoteColumn(alias, c)
		out.Columns = append(out.Columns, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(sel.Func)), col, quote(sel.Alias)))
	}
	return out, nil
}
