package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
	Entity string
}

// ValidationIssue is one problem found in a query file.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Entity string            `json:"entity"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <query-file>",
		Short: "Check a query file against an entity schema",
		Long: `Check every field, operator, sort key and aggregate of a query file
against the entity's CUE descriptor without touching a backend.

All issues are reported at once.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "directory of CUE entity descriptors; default QUERYKIT_SCHEMA_DIR")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "entity the query targets")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Schema == "" {
		opts.Schema = opts.Config.SchemaDir
	}

	registry, err := LoadSchema(opts.Schema)
	if err != nil {
		return outputError(formatter, "loading schema", err)
	}
	if _, err := lookupEntity(registry, opts.Entity); err != nil {
		return outputError(formatter, "loading schema", err)
	}

	qf, err := LoadQueryFile(path)
	if err != nil {
		var qErr *query.Error
		if errors.As(err, &qErr) {
			// The file does not decode into a filter at all; report it as
			// the single issue.
			return outputValidationErrors(formatter, opts.Entity, issuesOf(err))
		}
		return outputError(formatter, "loading query", err)
	}

	formatter.VerboseLog("Validating %s against %s", path, opts.Entity)
	if issues := issuesOf(validateFile(registry, opts.Entity, qf)); len(issues) > 0 {
		return outputValidationErrors(formatter, opts.Entity, issues)
	}
	return outputValidateSuccess(formatter, opts.Entity)
}

// validateFile checks the query part of qf and, when present, its aggregate.
func validateFile(registry *schema.Registry, entity string, qf *QueryFile) error {
	var result *multierror.Error
	if err := registry.ValidateQuery(entity, qf.Query()); err != nil {
		result = multierror.Append(result, err)
	}
	if qf.Aggregate != nil {
		// The filter was checked above.
		if err := registry.ValidateAggregate(entity, query.Filter{}, *qf.Aggregate); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// issuesOf flattens err into one issue per underlying error. Query errors
// keep their code.
func issuesOf(err error) []ValidationIssue {
	if err == nil {
		return nil
	}
	errs := []error{err}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.WrappedErrors()
	}

	issues := make([]ValidationIssue, 0, len(errs))
	for _, e := range errs {
		code := ErrCodeValidation
		if c := query.CodeOf(e); c != "" {
			code = string(c)
		}
		issues = append(issues, ValidationIssue{Code: code, Message: e.Error()})
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, entity string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Entity: entity})
	}
	fmt.Fprintf(formatter.Writer, "✓ Query is valid for %s\n", entity)
	return nil
}

// outputValidationErrors outputs every validation issue.
func outputValidationErrors(formatter *OutputFormatter, entity string, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Entity: entity, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range issues {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
