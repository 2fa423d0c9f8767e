package conformance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/sebdah/goldie/v2"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/querysql"
	"github.com/roach88/querykit/internal/schema"
)

// SQLSnapshot renders the SQL every step of sc compiles to in dialect d:
//
//	-- step_name
//	SELECT ...
//	-- args: [...]
//
// A step that fails to compile renders its error code instead of SQL.
func SQLSnapshot(sc *Scenario, registry *schema.Registry, d querysql.Dialect) ([]byte, error) {
	var buf bytes.Buffer
	for _, step := range sc.Steps {
		e, ok := registry.Entity(step.Entity)
		if !ok {
			return nil, fmt.Errorf("%s: unknown entity %s", step.Name, step.Entity)
		}
		fmt.Fprintf(&buf, "-- %s\n", step.Name)

		stmt, err := compileStep(querysql.NewFilterQueryBuilder(d, registry, e), step)
		if err != nil {
			if code := query.CodeOf(err); code != "" {
				fmt.Fprintf(&buf, "-- error: %s\n\n", code)
				continue
			}
			return nil, fmt.Errorf("%s: %w", step.Name, err)
		}
		text, err := stmt.Text(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name, err)
		}

		args := []byte("[]")
		if len(stmt.Args) > 0 {
			if args, err = json.Marshal(stmt.Args); err != nil {
				return nil, fmt.Errorf("%s: %w", step.Name, err)
			}
		}
		fmt.Fprintf(&buf, "%s\n-- args: %s\n\n", text, args)
	}
	return buf.Bytes(), nil
}

func compileStep(b *querysql.FilterQueryBuilder, step Step) (querysql.Statement, error) {
	var (
		sb  sq.Sqlizer
		err error
	)
	switch {
	case step.Query != nil:
		sb, err = b.BuildQuery(*step.Query)
	case step.Count != nil:
		sb, err = b.BuildCount(*step.Count)
	case step.Aggregate != nil:
		sb, err = b.BuildAggregateQuery(step.Aggregate.AggregateQuery, step.Aggregate.Filter)
	default:
		return querysql.Statement{}, fmt.Errorf("step has no operation")
	}
	if err != nil {
		return querysql.Statement{}, err
	}
	return querysql.Compile(sb)
}

// AssertSQLGolden compares the SQL snapshot of sc against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.{dialect}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/conformance -update
func AssertSQLGolden(t *testing.T, sc *Scenario, d querysql.Dialect) {
	t.Helper()

	registry, err := schema.LoadDir(sc.Schema)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	snapshot, err := SQLSnapshot(sc, registry, d)
	if err != nil {
		t.Fatalf("snapshot %s: %v", sc.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, fmt.Sprintf("%s.%s", sc.Name, d), snapshot)
}
