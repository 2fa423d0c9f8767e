package memory

import (
	"sort"

	"github.com/spf13/cast"

	"github.com/roach88/querykit/internal/query"
)

// AggregateBuilder computes aggregate rows over in-memory records.
type AggregateBuilder struct{}

type aggregateGroup struct {
	key     []any
	records []query.Record
}

// Rows groups records by q.GroupBy and emits one flat row per group using
// the alias contract. Groups are ordered by their key values ascending with
// nulls last. Without group-by fields there is exactly one row, even for no
// records.
func (AggregateBuilder) Rows(records []query.Record, q query.AggregateQuery) ([]map[string]any, error) {
	if err := q.Check(); err != nil {
		return nil, err
	}

	groups := groupRecords(records, q.GroupBy)
	rows := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		row := make(map[string]any)
		for i, field := range q.GroupBy {
			row[query.AggregateAlias(query.FuncGroupBy, field)] = g.key[i]
		}
		for _, sel := range q.Selections() {
			row[sel.Alias] = aggregate(sel.Func, sel.Field, g.records)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Aggregate computes the normalized responses for records.
func (b AggregateBuilder) Aggregate(records []query.Record, q query.AggregateQuery) ([]query.AggregateResponse, error) {
	rows, err := b.Rows(records, q)
	if err != nil {
		return nil, err
	}
	return query.ConvertToAggregateResponses(rows)
}

func groupRecords(records []query.Record, groupBy []string) []*aggregateGroup {
	if len(groupBy) == 0 {
		return []*aggregateGroup{{records: records}}
	}

	var groups []*aggregateGroup
	for _, r := range records {
		key := make([]any, len(groupBy))
		for i, field := range groupBy {
			key[i] = r[field]
		}
		var found *aggregateGroup
		for _, g := range groups {
			if sameKey(g.key, key) {
				found = g
				break
			}
		}
		if found == nil {
			found = &aggregateGroup{key: key}
			groups = append(groups, found)
		}
		found.records = append(found.records, r)
	}

	asc := query.SortField{Direction: query.ASC}
	sort.SliceStable(groups, func(i, j int) bool {
		for k := range groupBy {
			if c := compareSortKey(asc, groups[i].key[k], groups[j].key[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return groups
}

func sameKey(a, b []any) bool {
	for i := range a {
		if !valuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// aggregate computes fn over the non-null values of field. count is an
// int64; sum and avg are float64 and null when nothing was summed; min and
// max keep the original value.
func aggregate(fn query.AggregateFunc, field string, records []query.Record) any {
	var values []any
	for _, r := range records {
		if v := r[field]; v != nil {
			values = append(values, v)
		}
	}

	switch fn {
	case query.FuncCount:
		return int64(len(values))
	case query.FuncSum, query.FuncAvg:
		var sum float64
		var n int
		for _, v := range values {
			f, err := cast.ToFloat64E(v)
			if err != nil {
				continue
			}
			sum += f
			n++
		}
		if n == 0 {
			return nil
		}
		if fn == query.FuncAvg {
			return sum / float64(n)
		}
		return sum
	case query.FuncMax, query.FuncMin:
		var best any
		for _, v := range values {
			if best == nil {
				best = v
				continue
			}
			c, ok := compareValues(v, best)
			if !ok {
				continue
			}
			if (fn == query.FuncMax && c > 0) || (fn == query.FuncMin && c < 0) {
				best = v
			}
		}
		return best
	}
	return nil
}
