package query

import (
	"regexp"
	"sort"
)

// AggregateFunc names an aggregate function in the column alias contract.
type AggregateFunc string

const (
	FuncGroupBy AggregateFunc = "groupBy"
	FuncCount   AggregateFunc = "count"
	FuncSum     AggregateFunc = "sum"
	FuncAvg     AggregateFunc = "avg"
	FuncMax     AggregateFunc = "max"
	FuncMin     AggregateFunc = "min"
)

// AggregateFuncs lists the value functions in emission order.
var AggregateFuncs = []AggregateFunc{FuncCount, FuncSum, FuncAvg, FuncMax, FuncMin}

// AggregateQuery selects the aggregate computations to run.
type AggregateQuery struct {
	Count   []string `json:"count,omitempty" yaml:"count,omitempty"`
	Sum     []string `json:"sum,omitempty" yaml:"sum,omitempty"`
	Avg     []string `json:"avg,omitempty" yaml:"avg,omitempty"`
	Max     []string `json:"max,omitempty" yaml:"max,omitempty"`
	Min     []string `json:"min,omitempty" yaml:"min,omitempty"`
	GroupBy []string `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`
}

// Fields returns the fields selected for fn.
func (q AggregateQuery) Fields(fn AggregateFunc) []string {
	switch fn {
	case FuncCount:
		return q.Count
	case FuncSum:
		return q.Sum
	case FuncAvg:
		return q.Avg
	case FuncMax:
		return q.Max
	case FuncMin:
		return q.Min
	case FuncGroupBy:
		return q.GroupBy
	}
	return nil
}

// AggregateSelection is one aggregate column a backend must produce.
type AggregateSelection struct {
	Func  AggregateFunc
	Field string
	Alias string
}

// Selections returns the value aggregates of q in emission order
// (count, sum, avg, max, min). Group-by columns are not included.
func (q AggregateQuery) Selections() []AggregateSelection {
	var out []AggregateSelection
	for _, fn := range AggregateFuncs {
		for _, field := range q.Fields(fn) {
			out = append(out, AggregateSelection{Func: fn, Field: field, Alias: AggregateAlias(fn, field)})
		}
	}
	return out
}

// Check fails with EMPTY_AGGREGATE when q selects neither aggregates nor groups.
func (q AggregateQuery) Check() error {
	if len(q.Selections()) == 0 && len(q.GroupBy) == 0 {
		return NewEmptyAggregateError()
	}
	return nil
}

// AggregateAlias returns the column alias for fn applied to field.
// Backends must emit exactly this alias so results can be normalized.
func AggregateAlias(fn AggregateFunc, field string) string {
	return string(fn) + "_" + field
}

// AggregateResponse is the normalized result of one aggregate group.
type AggregateResponse struct {
	Count   map[string]any `json:"count,omitempty" yaml:"count,omitempty"`
	Sum     map[string]any `json:"sum,omitempty" yaml:"sum,omitempty"`
	Avg     map[string]any `json:"avg,omitempty" yaml:"avg,omitempty"`
	Max     map[string]any `json:"max,omitempty" yaml:"max,omitempty"`
	Min     map[string]any `json:"min,omitempty" yaml:"min,omitempty"`
	GroupBy map[string]any `json:"groupBy,omitempty" yaml:"groupBy,omitempty"`
}

func (r *AggregateResponse) slot(fn AggregateFunc) *map[string]any {
	switch fn {
	case FuncCount:
		return &r.Count
	case FuncSum:
		return &r.Sum
	case FuncAvg:
		return &r.Avg
	case FuncMax:
		return &r.Max
	case FuncMin:
		return &r.Min
	case FuncGroupBy:
		return &r.GroupBy
	}
	return nil
}

// Set records value for fn on field.
func (r *AggregateResponse) Set(fn AggregateFunc, field string, value any) {
	m := r.slot(fn)
	if m == nil {
		return
	}
	if *m == nil {
		*m = make(map[string]any)
	}
	(*m)[field] = value
}

// Get returns the value recorded for fn on field.
func (r AggregateResponse) Get(fn AggregateFunc, field string) (any, bool) {
	m := r.slot(fn)
	if m == nil || *m == nil {
		return nil, false
	}
	v, ok := (*m)[field]
	return v, ok
}

var aggregateColumnPattern = regexp.MustCompile(`^(groupBy|count|sum|avg|max|min)_(.*)$`)

// ParseAggregateAlias splits a column alias into its function and field.
func ParseAggregateAlias(column string) (AggregateFunc, string, error) {
	m := aggregateColumnPattern.FindStringSubmatch(column)
	if m == nil {
		return "", "", NewUnknownAggregateColumnError(column)
	}
	return AggregateFunc(m[1]), m[2], nil
}

// ConvertToAggregateResponse normalizes one flat backend row whose columns
// follow the alias contract.
func ConvertToAggregateResponse(row map[string]any) (AggregateResponse, error) {
	var resp AggregateResponse
	columns := make([]string, 0, len(row))
	for c := range row {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, column := range columns {
		fn, field, err := ParseAggregateAlias(column)
		if err != nil {
			return AggregateResponse{}, err
		}
		resp.Set(fn, field, row[column])
	}
	return resp, nil
}

// ConvertToAggregateResponses normalizes every row of a backend result.
func ConvertToAggregateResponses(rows []map[string]any) ([]AggregateResponse, error) {
	out := make([]AggregateResponse, 0, len(rows))
	for _, row := range rows {
		resp, err := ConvertToAggregateResponse(row)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// Flatten renders r as a flat row using the alias contract.
func (r AggregateResponse) Flatten() map[string]any {
	row := map[string]any{}
	for _, fn := range append([]AggregateFunc{FuncGroupBy}, AggregateFuncs...) {
		m := r.slot(fn)
		for field, v := range *m {
			row[AggregateAlias(fn, field)] = v
		}
	}
	return row
}
