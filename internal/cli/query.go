package cli

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/service"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	BackendOptions
	Count bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query-file>",
		Short: "Run a query file against a backend",
		Long: `Run the filter, sorting and paging of a query file and print the
matching records.

The memory backend reads its records from --data; sqlite and postgres
connect to --dsn; mongo uses QUERYKIT_MONGO_URI and QUERYKIT_MONGO_DATABASE.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matching records instead")

	return cmd
}

// session is an open backend plus the file and formatter a run command uses.
type session struct {
	formatter *OutputFormatter
	file      *QueryFile
	svc       service.QueryService
	close     func()
}

// openSession loads the query file and entity and connects to the backend.
func openSession(ctx context.Context, root *RootOptions, bo *BackendOptions, path string, cmd *cobra.Command) (*session, error) {
	formatter := newFormatter(root, cmd)
	bo.resolve(root.Config)

	qf, err := LoadQueryFile(path)
	if err != nil {
		return nil, outputError(formatter, "loading query", err)
	}
	t, err := bo.loadTarget()
	if err != nil {
		return nil, outputError(formatter, "loading entity", err)
	}

	log := logrus.WithFields(logrus.Fields{"backend": bo.Backend, "entity": t.name()})
	svc, closer, err := openService(ctx, bo, root.Config, t, log)
	if err != nil {
		return nil, outputError(formatter, "opening backend", err)
	}
	formatter.VerboseLog("Connected to %s backend for %s", bo.Backend, t.name())

	svc, report, err := instrument(svc, t.name(), root.Config.Metrics, formatter)
	if err != nil {
		closer()
		return nil, outputError(formatter, "registering metrics", err)
	}

	return &session{
		formatter: formatter,
		file:      qf,
		svc:       svc,
		close: func() {
			report()
			closer()
		},
	}, nil
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts.RootOptions, &opts.BackendOptions, path, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if opts.Count {
		n, err := s.svc.Count(ctx, s.file.Filter)
		if err != nil {
			return outputError(s.formatter, "counting records", err)
		}
		if s.formatter.Format == "json" {
			return s.formatter.Success(map[string]int64{"count": n})
		}
		return s.formatter.Success(n)
	}

	recs, err := s.svc.Query(ctx, s.file.Query())
	if err != nil {
		return outputError(s.formatter, "running query", err)
	}
	s.formatter.VerboseLog("%d record(s)", len(recs))
	return s.formatter.Records(recs)
}
