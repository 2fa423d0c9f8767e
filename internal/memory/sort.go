package memory

import (
	"sort"

	"github.com/roach88/querykit/internal/query"
)

// Comparator orders two records; negative means a sorts before b.
type Comparator func(a, b query.Record) int

// SortBuilder compiles a list of sort fields into a Comparator.
type SortBuilder struct{}

// Build compiles sorting into a multi-key comparator. Null placement is
// decided before direction, so NULLS_FIRST puts nulls first whether the key
// is ascending or descending.
func (SortBuilder) Build(sorting []query.SortField) Comparator {
	keys := make([]query.SortField, len(sorting))
	copy(keys, sorting)

	return func(a, b query.Record) int {
		for _, s := range keys {
			if c := compareSortKey(s, a[s.Field], b[s.Field]); c != 0 {
				return c
			}
		}
		return 0
	}
}

func compareSortKey(s query.SortField, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if s.NullsFirst() {
			return -1
		}
		return 1
	case b == nil:
		if s.NullsFirst() {
			return 1
		}
		return -1
	}

	c, ok := compareValues(a, b)
	if !ok {
		ka, kb := sortKey(a), sortKey(b)
		switch {
		case ka < kb:
			c = -1
		case ka > kb:
			c = 1
		}
	}
	if s.Descending() {
		return -c
	}
	return c
}

// Sort returns a sorted copy of records. The sort is stable and the input
// slice is never reordered.
func (b SortBuilder) Sort(records []query.Record, sorting []query.SortField) []query.Record {
	out := make([]query.Record, len(records))
	copy(out, records)
	if len(sorting) == 0 {
		return out
	}
	cmp := b.Build(sorting)
	sort.SliceStable(out, func(i, j int) bool { return cmp(out[i], out[j]) < 0 })
	return out
}

// PagingBuilder applies a Paging window to a result slice.
type PagingBuilder struct{}

// Apply returns the window of records selected by p. Bounds are clamped:
// an offset past the end yields nothing, a nil limit keeps the rest, and a
// non-positive limit yields nothing.
func (PagingBuilder) Apply(records []query.Record, p query.Paging) []query.Record {
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > len(records) {
		start = len(records)
	}
	end := len(records)
	if p.Limit != nil {
		if *p.Limit <= 0 {
			return []query.Record{}
		}
		if *p.Limit < end-start {
			end = start + *p.Limit
		}
	}
	return records[start:end]
}
