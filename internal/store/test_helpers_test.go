package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
	"github.com/roach88/querykit/internal/testutil"
)

// createTestStore creates a new SQLite store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createBlogRepos creates the blog tables, seeds them with the shared
// fixtures and returns a repository per entity.
func createBlogRepos(t *testing.T, opts ...Option) (users, posts *Repository) {
	t.Helper()
	ctx := context.Background()
	s := createTestStore(t)
	reg := testutil.BlogRegistry()

	repo := func(name string, seed []query.Record) *Repository {
		r, err := NewRepository(s, reg, name, opts...)
		require.NoError(t, err)
		require.NoError(t, s.CreateTable(ctx, r.Entity()))
		if seed != nil {
			_, err = r.CreateMany(ctx, seed)
			require.NoError(t, err)
		}
		return r
	}
	users = repo("User", testutil.Users())
	posts = repo("Post", testutil.Posts())
	repo("Comment", nil)
	return users, posts
}

func docRegistry() *schema.Registry {
	return schema.MustRegistry(schema.Entity{
		Name:    "Doc",
		Table:   "docs",
		IDField: "id",
		Fields: map[string]schema.Field{
			"id":   {Type: schema.TypeID},
			"meta": {Type: schema.TypeAny},
		},
	})
}

func ids(records []query.Record) []any {
	return testutil.IDs(records)
}

func nameFilter(name string) query.Filter {
	return query.Filter{Fields: map[string]query.FieldFilter{"name": query.Comparison{query.OpEq: name}}}
}
