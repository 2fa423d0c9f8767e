package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/document"
	"github.com/roach88/querykit/internal/memory"
	"github.com/roach88/querykit/internal/metrics"
	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/querysql"
	"github.com/roach88/querykit/internal/schema"
	"github.com/roach88/querykit/internal/service"
	"github.com/roach88/querykit/internal/store"
)

// BackendOptions selects the backend and entity a command works on. Empty
// flags fall back to the loaded config.
type BackendOptions struct {
	Backend string
	DSN     string
	Data    string
	Schema  string
	Entity  string
	Table   string
}

func (o *BackendOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Backend, "backend", "", "backend (memory|sqlite|postgres|mongo); default QUERYKIT_BACKEND")
	cmd.Flags().StringVar(&o.DSN, "dsn", "", "SQL data source name; default QUERYKIT_DSN")
	cmd.Flags().StringVar(&o.Data, "data", "", "YAML or JSON records for the memory backend")
	cmd.Flags().StringVar(&o.Schema, "schema", "", "directory of CUE entity descriptors; default QUERYKIT_SCHEMA_DIR")
	cmd.Flags().StringVar(&o.Entity, "entity", "", "entity to query (requires a schema)")
	cmd.Flags().StringVar(&o.Table, "table", "", "table or collection to query without a schema")
}

// resolve fills unset flags from cfg.
func (o *BackendOptions) resolve(cfg config.Config) {
	if o.Backend == "" {
		o.Backend = cfg.Backend
	}
	if o.DSN == "" {
		o.DSN = cfg.DSN
	}
	if o.Schema == "" {
		o.Schema = cfg.SchemaDir
	}
}

// target is the resolved entity a command works on. registry is nil when
// the command runs schema-less against a bare table.
type target struct {
	registry *schema.Registry
	entity   *schema.Entity
}

func (t target) name() string {
	return t.entity.Name
}

// loadTarget resolves --entity through the schema, or --table to a
// schema-less entity. --table is ignored when --entity is set.
func (o *BackendOptions) loadTarget() (target, error) {
	if o.Entity == "" {
		if o.Table == "" {
			return target{}, &LoadError{Code: ErrCodeGeneric, Message: "one of --entity or --table is required"}
		}
		return target{entity: querysql.TableEntity(o.Table)}, nil
	}
	registry, err := LoadSchema(o.Schema)
	if err != nil {
		return target{}, err
	}
	e, err := lookupEntity(registry, o.Entity)
	if err != nil {
		return target{}, err
	}
	return target{registry: registry, entity: e}, nil
}

// objectIDFields lists the id-typed fields of e other than its primary key,
// which document.Service coerces on its own.
func objectIDFields(e *schema.Entity) []string {
	var out []string
	for _, name := range e.FieldNames() {
		if f, _ := e.Field(name); f.Type == schema.TypeID && name != e.IDField {
			out = append(out, name)
		}
	}
	return out
}

// openService connects to the selected backend. The returned closer releases
// the connection.
func openService(ctx context.Context, o *BackendOptions, cfg config.Config, t target, log logrus.FieldLogger) (service.QueryService, func(), error) {
	noop := func() {}
	switch o.Backend {
	case config.BackendMemory:
		var recs []query.Record
		if o.Data != "" {
			var err error
			if recs, err = LoadRecords(o.Data); err != nil {
				return nil, noop, err
			}
		}
		idField := t.entity.IDField
		if idField == "" {
			idField = "id"
		}
		return memory.NewService(idField, memory.WithRecords(recs), memory.WithLogger(log)), noop, nil

	case config.BackendSQLite, config.BackendPostgres:
		if o.DSN == "" {
			return nil, noop, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("backend %s requires --dsn", o.Backend)}
		}
		d, err := querysql.ParseDialect(o.Backend)
		if err != nil {
			return nil, noop, &LoadError{Code: ErrCodeUnknownName, Message: err.Error()}
		}
		s, err := store.Open(d, o.DSN)
		if err != nil {
			return nil, noop, err
		}
		closer := func() { _ = s.Close() }
		if t.registry == nil {
			return store.NewTableRepository(s, t.entity.TableName(), store.WithLogger(log)), closer, nil
		}
		repo, err := store.NewRepository(s, t.registry, t.name(), store.WithLogger(log))
		if err != nil {
			closer()
			return nil, noop, err
		}
		return repo, closer, nil

	case config.BackendMongo:
		client, err := document.Connect(ctx, cfg.MongoURI, cfg.MongoTimeout)
		if err != nil {
			return nil, noop, err
		}
		closer := func() { _ = client.Disconnect(context.Background()) }
		coll := client.Database(cfg.MongoDatabase).Collection(t.entity.TableName())
		opts := []document.Option{
			document.WithName(t.entity.TableName()),
			document.WithLogger(log),
		}
		if t.registry != nil {
			opts = append(opts,
				document.WithIDField(t.entity.IDField),
				document.WithObjectIDFields(objectIDFields(t.entity)...),
			)
		}
		return document.NewService(coll, opts...), closer, nil
	}
	return nil, noop, &LoadError{Code: ErrCodeUnknownName, Message: fmt.Sprintf("unknown backend %q", o.Backend)}
}

// instrument wraps svc with Prometheus collectors when metrics are enabled.
// The returned report prints the collected series as verbose output.
func instrument(svc service.QueryService, entity string, enabled bool, formatter *OutputFormatter) (service.QueryService, func(), error) {
	if !enabled {
		return svc, func() {}, nil
	}
	reg := prom.NewRegistry()
	c, err := metrics.NewCollectors(reg)
	if err != nil {
		return nil, nil, err
	}
	report := func() {
		families, err := reg.Gather()
		if err != nil {
			formatter.VerboseLog("gathering metrics: %v", err)
			return
		}
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				labels := make([]string, 0, len(m.GetLabel()))
				for _, lp := range m.GetLabel() {
					labels = append(labels, lp.GetName()+"="+lp.GetValue())
				}
				sort.Strings(labels)
				value := m.GetCounter().GetValue()
				if h := m.GetHistogram(); h != nil {
					value = h.GetSampleSum()
				}
				formatter.VerboseLog("metric %s{%s} %g", mf.GetName(), strings.Join(labels, ","), value)
			}
		}
	}
	return metrics.Instrument(svc, entity, c), report, nil
}
