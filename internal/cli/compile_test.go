package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_SQL(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		wantSQL  []string
		wantArgs string
	}{
		{
			name:     "sqlite",
			backend:  "sqlite",
			wantSQL:  []string{`FROM "users" AS "t0"`, `"t0"."age" >= ?`, `ORDER BY "t0"."age" DESC`, "LIMIT 10"},
			wantArgs: "-- args: [30]",
		},
		{
			name:     "postgres",
			backend:  "postgres",
			wantSQL:  []string{`FROM "users" AS "t0"`, `"t0"."age" >= $1`},
			wantArgs: "-- args: [30]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "compile", "--backend", tt.backend, "--entity", "User", queryPath("adults.yaml"))
			require.NoError(t, err)
			for _, want := range tt.wantSQL {
				assert.Contains(t, out, want)
			}
			assert.Contains(t, out, tt.wantArgs)
		})
	}
}

func TestCompile_SQLAggregate(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "compile", "--backend", "sqlite", "--entity", "User", queryPath("by_admin.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CompiledQuery `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "User", resp.Data.Entity)
	assert.Contains(t, resp.Data.SQL, `COUNT("t0"."id") AS "count_id"`)
	assert.Contains(t, resp.Data.SQL, `MAX("t0"."age") AS "max_age"`)
	assert.Contains(t, resp.Data.SQL, `GROUP BY`)
	assert.Empty(t, resp.Data.Args)
}

func TestCompile_Mongo(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "compile", "--backend", "mongo", "--entity", "User", queryPath("adults.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data CompiledQuery `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	var stages []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data.Pipeline, &stages))
	require.NotEmpty(t, stages)
	assert.Contains(t, stages[0], "$match")
	assert.Contains(t, stages[len(stages)-1], "$limit")
}

func TestCompile_MemoryPlan(t *testing.T) {
	out, _, err := execute(t, "compile", "--backend", "memory", "--table", "users", queryPath("adults.yaml"))
	require.NoError(t, err)

	var plan map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, map[string]interface{}{"age": map[string]interface{}{"gte": float64(30)}}, plan["filter"])
	assert.Equal(t, map[string]interface{}{"limit": float64(10)}, plan["paging"])
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{"missing file", []string{"--backend", "sqlite", "--table", "users", queryPath("missing.yaml")}, ErrCodeNotFound, ExitCommandError},
		{"no entity or table", []string{"--backend", "sqlite", queryPath("adults.yaml")}, ErrCodeGeneric, ExitCommandError},
		{"unknown entity", []string{"--backend", "sqlite", "--entity", "Tag", queryPath("adults.yaml")}, ErrCodeUnknownName, ExitCommandError},
		{"unknown backend", []string{"--backend", "redis", "--table", "users", queryPath("adults.yaml")}, ErrCodeUnknownName, ExitCommandError},
		{"missing schema", []string{"--backend", "sqlite", "--schema", "testdata/none", "--entity", "User", queryPath("adults.yaml")}, ErrCodeNotFound, ExitCommandError},
		{"invalid filter", []string{"--backend", "sqlite", "--table", "users", queryPath("invalid_filter.yaml")}, "INVALID_FILTER", ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, append([]string{"--format", "json", "compile"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
