package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_Memory(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "aggregate", "--data", usersData, "--entity", "User", queryPath("by_admin.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string                   `json:"status"`
		Data   []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.ElementsMatch(t, []map[string]interface{}{
		{
			"count":   map[string]interface{}{"id": float64(2)},
			"max":     map[string]interface{}{"age": float64(42)},
			"groupBy": map[string]interface{}{"admin": false},
		},
		{
			"count":   map[string]interface{}{"id": float64(1)},
			"max":     map[string]interface{}{"age": float64(31)},
			"groupBy": map[string]interface{}{"admin": true},
		},
	}, resp.Data)
}

func TestAggregate_SQLiteFlat(t *testing.T) {
	dsn := seedSQLite(t)

	out, _, err := execute(t, "aggregate", "--flat", "--backend", "sqlite", "--dsn", dsn, "--entity", "User", queryPath("by_admin.yaml"))
	require.NoError(t, err)

	var rows []map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var row map[string]interface{}
		require.NoError(t, dec.Decode(&row))
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Contains(t, row, "count_id")
		assert.Contains(t, row, "max_age")
		assert.Contains(t, row, "groupBy_admin")
	}
}

func TestAggregate_RequiresAggregateSection(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "aggregate", "--data", usersData, "--table", "users", queryPath("adults.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "EMPTY_AGGREGATE", resp.Error.Code)
}
