package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/query"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	*RootOptions
	BackendOptions
	Flat bool
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "aggregate <query-file>",
		Short: "Run the aggregate section of a query file",
		Long: `Run the aggregate section of a query file over the records matching its
filter and print one response per group.

Backends are selected like for the query command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.Flat, "flat", false, "print responses keyed by result alias (count_id, ...)")

	return cmd
}

func runAggregate(opts *AggregateOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts.RootOptions, &opts.BackendOptions, path, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if s.file.Aggregate == nil {
		return outputError(s.formatter, "running aggregate", query.NewEmptyAggregateError())
	}

	rows, err := s.svc.Aggregate(ctx, s.file.Filter, *s.file.Aggregate)
	if err != nil {
		return outputError(s.formatter, "running aggregate", err)
	}
	s.formatter.VerboseLog("%d group(s)", len(rows))

	if rows == nil {
		rows = []query.AggregateResponse{}
	}
	if opts.Flat {
		flat := make([]query.Record, len(rows))
		for i, r := range rows {
			flat[i] = r.Flatten()
		}
		return s.formatter.Records(flat)
	}

	if s.formatter.Format == "json" {
		return s.formatter.Success(rows)
	}
	enc := json.NewEncoder(s.formatter.Writer)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
