package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
	"github.com/roach88/querykit/internal/testutil"
)

func entity(t *testing.T, reg *schema.Registry, name string) *schema.Entity {
	t.Helper()
	e, ok := reg.Entity(name)
	require.True(t, ok, "entity %s", name)
	return e
}

func fields(name string, ff query.FieldFilter) query.Filter {
	return query.Filter{Fields: map[string]query.FieldFilter{name: ff}}
}

func TestWhereBuilder(t *testing.T) {
	reg := testutil.BlogRegistry()
	users := entity(t, reg, "User")
	posts := entity(t, reg, "Post")

	tests := []struct {
		name   string
		entity *schema.Entity
		filter query.Filter
		sql    string
		args   []any
	}{
		{
			name:   "empty filter is identity",
			entity: users,
			sql:    `(1=1)`,
		},
		{
			name:   "single comparison",
			entity: users,
			filter: fields("name", query.Comparison{query.OpEq: "Ann"}),
			sql:    `"t0"."name" = ?`,
			args:   []any{"Ann"},
		},
		{
			name:   "fields are ANDed in name order",
			entity: users,
			filter: query.Filter{Fields: map[string]query.FieldFilter{
				"name": query.Comparison{query.OpEq: "Ann"},
				"age":  query.Comparison{query.OpGt: 30},
			}},
			sql:  `("t0"."age" > ? AND "t0"."name" = ?)`,
			args: []any{30, "Ann"},
		},
		{
			name:   "operators on one field are ORed",
			entity: users,
			filter: fields("age", query.Comparison{query.OpLt: 20, query.OpGt: 40}),
			sql:    `("t0"."age" > ? OR "t0"."age" < ?)`,
			args:   []any{40, 20},
		},
		{
			name:   "empty comparison is identity",
			entity: users,
			filter: fields("age", query.Comparison{}),
			sql:    `(1=1)`,
		},
		{
			name:   "and, or and fields",
			entity: users,
			filter: query.Filter{
				And: []query.Filter{fields("admin", query.Comparison{query.OpIs: true})},
				Or: []query.Filter{
					fields("name", query.Comparison{query.OpEq: "Ann"}),
					fields("name", query.Comparison{query.OpEq: "bob"}),
				},
				Fields: map[string]query.FieldFilter{"age": query.Comparison{query.OpGte: 18}},
			},
			sql:  `(("t0"."admin" IS TRUE) AND ("t0"."name" = ? OR "t0"."name" = ?) AND "t0"."age" >= ?)`,
			args: []any{"Ann", "bob", 18},
		},
		{
			name:   "declared column names are used",
			entity: posts,
			filter: fields("authorId", query.Comparison{query.OpIn: []any{"u1", "u2"}}),
			sql:    `"t0"."author_id" IN (?,?)`,
			args:   []any{"u1", "u2"},
		},
		{
			name:   "to-many relation",
			entity: users,
			filter: fields("posts", &query.Filter{Fields: map[string]query.FieldFilter{
				"title": query.Comparison{query.OpLike: "Go%"},
			}}),
			sql:  `EXISTS (SELECT 1 FROM "posts" AS "t1" WHERE "t1"."author_id" = "t0"."id" AND "t1"."title" LIKE ? ESCAPE '\')`,
			args: []any{"Go%"},
		},
		{
			name:   "empty nested filter requires a related row",
			entity: users,
			filter: fields("posts", query.Filter{}),
			sql:    `EXISTS (SELECT 1 FROM "posts" AS "t1" WHERE "t1"."author_id" = "t0"."id")`,
		},
		{
			name:   "relations chain with fresh aliases",
			entity: posts,
			filter: fields("author", query.Filter{Fields: map[string]query.FieldFilter{
				"posts": query.Filter{Fields: map[string]query.FieldFilter{
					"published": query.Comparison{query.OpIs: true},
				}},
			}}),
			sql: `EXISTS (SELECT 1 FROM "users" AS "t1" WHERE "t1"."id" = "t0"."author_id" AND ` +
				`EXISTS (SELECT 1 FROM "posts" AS "t2" WHERE "t2"."author_id" = "t1"."id" AND "t2"."published" IS TRUE))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewWhereBuilder(SQLite, reg).Build(tt.entity, tt.filter)
			require.NoError(t, err)
			sql, args := toSQL(t, p)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestWhereBuilder_Errors(t *testing.T) {
	reg := testutil.BlogRegistry()
	users := entity(t, reg, "User")

	tests := []struct {
		name     string
		registry *schema.Registry
		filter   query.Filter
		check    func(error) bool
	}{
		{
			name:     "nested filter on a plain field",
			registry: reg,
			filter:   fields("name", query.Filter{}),
			check:    query.IsInvalidFilter,
		},
		{
			name:   "relation without registry",
			filter: fields("posts", query.Filter{}),
			check:  query.IsInvalidFilter,
		},
		{
			name:     "unknown operator inside a group",
			registry: reg,
			filter:   query.Filter{Or: []query.Filter{fields("age", query.Comparison{"near": 1})}},
			check:    query.IsUnknownOperator,
		},
		{
			name:     "malformed between inside a relation",
			registry: reg,
			filter:   fields("posts", query.Filter{Fields: map[string]query.FieldFilter{"score": query.Comparison{query.OpBetween: 3}}}),
			check:    query.IsMalformedBetween,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWhereBuilder(SQLite, tt.registry).Build(users, tt.filter)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}
