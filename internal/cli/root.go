package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/config"
	"github.com/roach88/querykit/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string

	// Config is loaded before any subcommand runs. Command flags override it.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the querykit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "querykit",
		Short: "querykit - one query language, many backends",
		Long: `Compile and run backend-agnostic filter, sort, paging and aggregate
queries against memory, SQLite, PostgreSQL and MongoDB.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", "", "env file to load (default .env)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewAggregateCommand(opts))

	return cmd
}

// setup loads the configuration and the global logger.
func (o *RootOptions) setup() error {
	if o.EnvFile != "" {
		o.Config = config.Load(o.EnvFile)
	} else {
		o.Config = config.Load()
	}

	logCfg := logger.Config{Level: o.Config.LogLevel, Color: o.Config.LogColor}
	if o.Verbose {
		logCfg.Level = "debug"
	}
	if errs := logCfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid log level %q: %v", logCfg.Level, errs[0])
	}
	logger.SetLogrus(logCfg)
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
