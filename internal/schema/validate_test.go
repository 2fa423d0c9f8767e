package schema

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/query"
)

func blogRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := CompileSource(blogSchema)
	require.NoError(t, err)
	return r
}

func fields(m map[string]query.FieldFilter) query.Filter {
	return query.Filter{Fields: m}
}

func TestValidateFilter_Valid(t *testing.T) {
	r := blogRegistry(t)

	f := query.Filter{
		And: []query.Filter{fields(map[string]query.FieldFilter{
			"age": query.Comparison{query.OpBetween: query.Range{Lower: 18, Upper: 65}},
		})},
		Or: []query.Filter{
			fields(map[string]query.FieldFilter{"name": query.Comparison{query.OpILike: "%ann%"}}),
			fields(map[string]query.FieldFilter{"email": query.Comparison{query.OpIs: nil}}),
		},
		Fields: map[string]query.FieldFilter{
			"id": query.Comparison{query.OpIn: []any{"a", "b"}},
			"posts": &query.Filter{Fields: map[string]query.FieldFilter{
				"published": query.Comparison{query.OpIs: true},
				"author": &query.Filter{Fields: map[string]query.FieldFilter{
					"name": query.Comparison{query.OpEq: "ann"},
				}},
			}},
		},
	}

	assert.NoError(t, r.ValidateFilter("User", f))
	assert.NoError(t, r.ValidateFilter("User", query.Filter{}))
}

func TestValidateFilter_CollectsAllIssues(t *testing.T) {
	r := blogRegistry(t)

	f := fields(map[string]query.FieldFilter{
		"nickname": query.Comparison{query.OpEq: "x"},
		"age": query.Comparison{
			query.OpLike:    "1%",
			query.OpBetween: []any{1, 2},
			"contains":      1,
		},
		"id":    query.Comparison{query.OpIn: "a"},
		"posts": query.Comparison{query.OpEq: 1},
		"name":  &query.Filter{},
		"email": query.Comparison{query.OpIs: "yes"},
	})

	err := r.ValidateFilter("User", f)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 8)

	msg := err.Error()
	assert.Contains(t, msg, "unknown field 'nickname'")
	assert.Contains(t, msg, "operator like is not allowed on number fields")
	assert.Contains(t, msg, "between on 'age' expects {lower, upper}")
	assert.Contains(t, msg, `unknown operator "contains"`)
	assert.Contains(t, msg, "in expects a list")
	assert.Contains(t, msg, "relation 'posts' needs a nested filter")
	assert.Contains(t, msg, "'name' is not a relation of User")
	assert.Contains(t, msg, "email: is expects null, true or false")
}

func TestValidateFilter_UnknownEntity(t *testing.T) {
	r := blogRegistry(t)
	err := r.ValidateFilter("Comment", query.Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entity "Comment"`)
}

func TestValidateFilter_NestedPathsReported(t *testing.T) {
	r := blogRegistry(t)
	f := fields(map[string]query.FieldFilter{
		"posts": &query.Filter{Or: []query.Filter{
			fields(map[string]query.FieldFilter{"rating": query.Comparison{query.OpGt: 3}}),
		}},
	})

	err := r.ValidateFilter("User", f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posts.or[0].rating: unknown field 'rating' on Post")
}

func TestValidateQuery(t *testing.T) {
	r := blogRegistry(t)

	assert.NoError(t, r.ValidateQuery("User", query.Query{
		Sorting: []query.SortField{{Field: "age", Direction: query.DESC}},
		Paging:  query.Limit(10, 0),
	}))

	err := r.ValidateQuery("User", query.Query{
		Sorting: []query.SortField{{Field: "posts"}},
		Paging:  query.Paging{Offset: -1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sorting[0]: unknown field 'posts'")
	assert.Contains(t, err.Error(), "offset must be non-negative")
}

func TestValidateAggregate(t *testing.T) {
	r := blogRegistry(t)

	assert.NoError(t, r.ValidateAggregate("User", query.Filter{}, query.AggregateQuery{
		Count:   []string{"id"},
		Avg:     []string{"age"},
		Max:     []string{"name"},
		GroupBy: []string{"email"},
	}))

	err := r.ValidateAggregate("User", query.Filter{}, query.AggregateQuery{})
	require.Error(t, err)
	assert.True(t, query.IsEmptyAggregate(err))

	err = r.ValidateAggregate("User", query.Filter{}, query.AggregateQuery{
		Sum:     []string{"name"},
		GroupBy: []string{"shoeSize"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum: field 'name' is string, not number")
	assert.Contains(t, err.Error(), "groupBy: unknown field 'shoeSize'")
}
