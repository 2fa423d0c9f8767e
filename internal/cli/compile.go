package cli

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/document"
	"github.com/roach88/querykit/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	BackendOptions
}

// CompiledQuery is the native form of a query file for one backend. Exactly
// one of SQL, Pipeline and Plan is set.
type CompiledQuery struct {
	Backend  string          `json:"backend"`
	Entity   string          `json:"entity"`
	SQL      string          `json:"sql,omitempty"`
	Args     []interface{}   `json:"args,omitempty"`
	Pipeline json.RawMessage `json:"pipeline,omitempty"`
	Plan     json.RawMessage `json:"plan,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Compile a query file to the backend's native query",
		Long: `Compile a YAML or JSON query file to the native query of a backend:
a parameterized SQL statement for sqlite and postgres, an aggregation
pipeline for mongo, or the normalized query for memory.

A file with an aggregate section compiles to an aggregate query.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	opts.resolve(opts.Config)

	qf, err := LoadQueryFile(path)
	if err != nil {
		return outputError(formatter, "loading query", err)
	}
	t, err := opts.loadTarget()
	if err != nil {
		return outputError(formatter, "loading entity", err)
	}
	formatter.VerboseLog("Compiling %s for %s (%s)", path, t.name(), opts.Backend)

	result := &CompiledQuery{Backend: opts.Backend, Entity: t.name()}
	switch opts.Backend {
	case config.BackendSQLite, config.BackendPostgres:
		err = compileSQL(result, qf, t)
	case config.BackendMongo:
		err = compilePipeline(result, qf, t)
	case config.BackendMemory:
		err = compilePlan(result, qf)
	default:
		err = &LoadError{Code: ErrCodeUnknownName, Message: fmt.Sprintf("unknown backend %q", opts.Backend)}
	}
	if err != nil {
		return outputError(formatter, "compiling query", err)
	}

	return outputCompileSuccess(formatter, result)
}

func compileSQL(result *CompiledQuery, qf *QueryFile, t target) error {
	d, err := querysql.ParseDialect(result.Backend)
	if err != nil {
		return err
	}
	b := querysql.NewFilterQueryBuilder(d, t.registry, t.entity)

	var sb sq.Sqlizer
	if qf.Aggregate != nil {
		sb, err = b.BuildAggregateQuery(*qf.Aggregate, qf.Filter)
	} else {
		sb, err = b.BuildQuery(qf.Query())
	}
	if err != nil {
		return err
	}
	stmt, err := querysql.Compile(sb)
	if err != nil {
		return err
	}
	text, err := stmt.Text(d)
	if err != nil {
		return err
	}
	result.SQL = text
	result.Args = stmt.Args
	return nil
}

func compilePipeline(result *CompiledQuery, qf *QueryFile, t target) error {
	idField := document.DefaultIDField
	var oidFields []string
	if t.registry != nil {
		idField = t.entity.IDField
		oidFields = objectIDFields(t.entity)
	}
	b := document.NewFilterQueryBuilder(idField, oidFields...)

	var (
		pipeline mongo.Pipeline
		err      error
	)
	if qf.Aggregate != nil {
		pipeline, err = b.BuildAggregateQuery(*qf.Aggregate, qf.Filter)
	} else {
		pipeline, err = b.BuildQuery(qf.Query())
	}
	if err != nil {
		return err
	}
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}

	// Extended JSON keeps ObjectIDs and dates readable.
	doc, err := bson.MarshalExtJSON(bson.D{{Key: "pipeline", Value: pipeline}}, false, false)
	if err != nil {
		return err
	}
	var wrapped struct {
		Pipeline json.RawMessage `json:"pipeline"`
	}
	if err := json.Unmarshal(doc, &wrapped); err != nil {
		return err
	}
	result.Pipeline = wrapped.Pipeline
	return nil
}

func compilePlan(result *CompiledQuery, qf *QueryFile) error {
	var (
		plan []byte
		err  error
	)
	if qf.Aggregate != nil {
		if err := qf.Aggregate.Check(); err != nil {
			return err
		}
		plan, err = json.Marshal(struct {
			Filter    interface{} `json:"filter"`
			Aggregate interface{} `json:"aggregate"`
		}{qf.Filter, qf.Aggregate})
	} else {
		plan, err = json.Marshal(qf.Query())
	}
	if err != nil {
		return err
	}
	result.Plan = plan
	return nil
}

// outputCompileSuccess prints the native query.
func outputCompileSuccess(formatter *OutputFormatter, result *CompiledQuery) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	switch {
	case result.SQL != "":
		fmt.Fprintln(formatter.Writer, result.SQL)
		if len(result.Args) > 0 {
			args, err := json.Marshal(result.Args)
			if err != nil {
				return err
			}
			fmt.Fprintf(formatter.Writer, "-- args: %s\n", args)
		}
	case result.Pipeline != nil:
		fmt.Fprintln(formatter.Writer, string(result.Pipeline))
	default:
		fmt.Fprintln(formatter.Writer, string(result.Plan))
	}
	return nil
}
