package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/querysql"
	"github.com/roach88/querykit/internal/testutil"
)

const pgUserSelect = `SELECT "t0"."admin", "t0"."age", "t0"."email", "t0"."id", "t0"."name" FROM "users" AS "t0"`

func newMockRepository(t *testing.T, entity string) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	s := New(sqldb, querysql.Postgres)
	repo, err := NewRepository(s, testutil.BlogRegistry(), entity, WithIDGenerator(testutil.NewSequentialIDs("pg").Next))
	require.NoError(t, err)
	return repo, mock
}

func TestPostgres_Query(t *testing.T) {
	users, mock := newMockRepository(t, "User")

	mock.ExpectQuery(regexp.QuoteMeta(pgUserSelect + ` WHERE ("t0"."admin" IS TRUE AND "t0"."name" ILIKE 'a%' ESCAPE '\') ` +
		`ORDER BY "t0"."age" ASC NULLS LAST, "t0"."id" ASC LIMIT 10 OFFSET 5`)).
		WillReturnRows(sqlmock.NewRows([]string{"admin", "age", "email", "id", "name"}).
			AddRow(true, int64(31), []byte("ann@example.com"), "u1", "Ann"))

	got, err := users.Query(context.Background(), query.Query{
		Filter: query.Filter{Fields: map[string]query.FieldFilter{
			"name":  query.Comparison{query.OpILike: "a%"},
			"admin": query.Comparison{query.OpIs: true},
		}},
		Sorting: []query.SortField{{Field: "age"}},
		Paging:  query.Limit(10, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, []query.Record{
		{"admin": true, "age": int64(31), "email": "ann@example.com", "id": "u1", "name": "Ann"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountAndAggregate(t *testing.T) {
	posts, mock := newMockRepository(t, "Post")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS "count" FROM "posts" AS "t0" WHERE "t0"."author_id" IN ('u1','u2')`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := posts.Count(ctx, query.Filter{Fields: map[string]query.FieldFilter{
		"authorId": query.Comparison{query.OpIn: []any{"u1", "u2"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "t0"."author_id" AS "groupBy_authorId", AVG("t0"."score") AS "avg_score" ` +
		`FROM "posts" AS "t0" GROUP BY "t0"."author_id" ORDER BY "t0"."author_id" ASC NULLS LAST`)).
		WillReturnRows(sqlmock.NewRows([]string{"groupBy_authorId", "avg_score"}).
			AddRow("u1", 8.5).
			AddRow("u2", 3.0))

	got, err := posts.Aggregate(ctx, query.Filter{}, query.AggregateQuery{Avg: []string{"score"}, GroupBy: []string{"authorId"}})
	require.NoError(t, err)
	assert.Equal(t, []query.AggregateResponse{
		{GroupBy: map[string]any{"authorId": "u1"}, Avg: map[string]any{"score": 8.5}},
		{GroupBy: map[string]any{"authorId": "u2"}, Avg: map[string]any{"score": 3.0}},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateOne(t *testing.T) {
	users, mock := newMockRepository(t, "User")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "users" ("id","name") VALUES ('pg-1','O''Hara')`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(pgUserSelect + ` WHERE "t0"."id" = 'pg-1' ORDER BY "t0"."id" ASC LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"admin", "age", "email", "id", "name"}).
			AddRow(nil, nil, nil, "pg-1", "O'Hara"))
	mock.ExpectCommit()

	created, err := users.CreateOne(context.Background(), query.Record{"name": "O'Hara"})
	require.NoError(t, err)
	assert.Equal(t, "pg-1", created["id"])
	assert.Equal(t, "O'Hara", created["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Writes(t *testing.T) {
	users, mock := newMockRepository(t, "User")
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "admin" = FALSE, "age" = 40 WHERE "id" IN ` +
		`(SELECT "t0"."id" FROM "users" AS "t0" WHERE "t0"."age" > 39)`)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := users.UpdateMany(ctx, query.Record{"age": 40, "admin": false}, query.Filter{Fields: map[string]query.FieldFilter{
		"age": query.Comparison{query.OpGt: 39},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "users" WHERE "id" IN ` +
		`(SELECT "t0"."id" FROM "users" AS "t0" WHERE "t0"."email" IS NULL)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err = users.DeleteMany(ctx, query.Filter{Fields: map[string]query.FieldFilter{
		"email": query.Comparison{query.OpIs: nil},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BackendErrorIsWrapped(t *testing.T) {
	users, mock := newMockRepository(t, "User")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*)`)).WillReturnError(assert.AnError)

	_, err := users.Count(context.Background(), query.Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "count users")
}
