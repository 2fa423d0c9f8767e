package query

import "strings"

// Record is a single backend row or document keyed by field name.
type Record = map[string]any

// Direction is a sort direction.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// NullsPlacement controls where null values sort.
type NullsPlacement string

const (
	NullsFirst NullsPlacement = "NULLS_FIRST"
	NullsLast  NullsPlacement = "NULLS_LAST"
)

// SortField is one key of a multi-key ordering.
//
// When Nulls is unset, ascending sorts put nulls last and descending sorts
// put them first, which matches PostgreSQL.
type SortField struct {
	Field     string         `json:"field" yaml:"field"`
	Direction Direction      `json:"direction" yaml:"direction"`
	Nulls     NullsPlacement `json:"nulls,omitempty" yaml:"nulls,omitempty"`
}

// Descending reports whether s sorts in descending order. Direction is
// matched case-insensitively; anything other than DESC is ascending.
func (s SortField) Descending() bool {
	return strings.EqualFold(string(s.Direction), string(DESC))
}

// NullsFirst resolves the effective null placement of s.
func (s SortField) NullsFirst() bool {
	switch NullsPlacement(strings.ToUpper(string(s.Nulls))) {
	case NullsFirst:
		return true
	case NullsLast:
		return false
	}
	return s.Descending()
}

// Paging selects a window of results. A nil Limit means unbounded.
type Paging struct {
	Limit  *int `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset int  `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// IsEmpty reports whether p selects every result.
func (p Paging) IsEmpty() bool {
	return p.Limit == nil && p.Offset == 0
}

// Limit returns a Paging with the given limit and offset.
func Limit(limit, offset int) Paging {
	return Paging{Limit: &limit, Offset: offset}
}

// Query bundles a filter, an ordering and a result window.
type Query struct {
	Filter  Filter      `json:"filter" yaml:"filter"`
	Sorting []SortField `json:"sorting,omitempty" yaml:"sorting,omitempty"`
	Paging  Paging      `json:"paging,omitempty" yaml:"paging,omitempty"`
}
