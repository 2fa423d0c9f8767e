package conformance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes body to a scenario file whose schema points at the
// shared test schema.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	schemaDir, err := filepath.Abs("testdata/schema")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content := "schema: " + schemaDir + "\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/snapshot.yaml")
	require.NoError(t, err)

	assert.Equal(t, "snapshot", sc.Name)
	assert.Equal(t, filepath.Join("testdata", "schema"), sc.Schema)
	assert.Len(t, sc.Fixtures["User"], 4)
	require.Len(t, sc.Steps, 4)

	kinds := make([]string, len(sc.Steps))
	for i, step := range sc.Steps {
		kinds[i] = step.Kind()
	}
	assert.Equal(t, []string{"query", "count", "aggregate", "query"}, kinds)

	agg := sc.Steps[2].Aggregate
	assert.Equal(t, []string{"authorId"}, agg.GroupBy)
	assert.Equal(t, []string{"id"}, agg.Count)
	assert.Equal(t, []string{"published"}, agg.Filter.FieldNames())

	require.NotNil(t, sc.Steps[1].Expect.Count)
	assert.Equal(t, int64(3), *sc.Steps[1].Expect.Count)
	assert.Equal(t, []any{"u1", "u2"}, sc.Steps[0].Expect.IDs)
}

func TestLoadScenario_EmptyRowsExpectation(t *testing.T) {
	sc, err := LoadScenario("testdata/scenarios/posts.yaml")
	require.NoError(t, err)

	for _, step := range sc.Steps {
		if step.Name == "empty_input_no_groups" {
			assert.NotNil(t, step.Expect.Rows, "rows: [] expects no rows rather than skipping the check")
			assert.Empty(t, step.Expect.Rows)
			return
		}
	}
	t.Fatal("step empty_input_no_groups not found")
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing name",
			body:    "description: d\nsteps: [{name: a, entity: User, count: {}}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			body:    "name: n\nsteps: [{name: a, entity: User, count: {}}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			body:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown field",
			body:    "name: n\ndescription: d\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing entity",
			body:    "name: n\ndescription: d\nsteps: [{name: a, count: {}}]\n",
			wantErr: "steps[0]: entity is required",
		},
		{
			name:    "no operation",
			body:    "name: n\ndescription: d\nsteps: [{name: a, entity: User}]\n",
			wantErr: "exactly one of query, count or aggregate",
		},
		{
			name:    "two operations",
			body:    "name: n\ndescription: d\nsteps: [{name: a, entity: User, count: {}, query: {}}]\n",
			wantErr: "exactly one of query, count or aggregate",
		},
		{
			name:    "mismatched expectation",
			body:    "name: n\ndescription: d\nsteps: [{name: a, entity: User, count: {}, expect: {ids: [u1]}}]\n",
			wantErr: "expect.ids requires a query step",
		},
		{
			name:    "error with values",
			body:    "name: n\ndescription: d\nsteps: [{name: a, entity: User, count: {}, expect: {count: 1, error: NOT_FOUND}}]\n",
			wantErr: "expect.error excludes other expectations",
		},
		{
			name:    "duplicate step",
			body:    "name: n\ndescription: d\nsteps: [{name: a, entity: User, count: {}}, {name: a, entity: User, count: {}}]\n",
			wantErr: `duplicate step name "a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	body := "name: n\ndescription: d\nschema: nowhere\nsteps: [{name: a, entity: User, count: {}}]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema directory not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	assert.Equal(t, []string{"posts", "snapshot", "users"}, names)
}
