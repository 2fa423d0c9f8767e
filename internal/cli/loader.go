package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// Error codes for CLI load and run failures. Query errors report their own
// query.ErrorCode instead.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeParseFailed  = "E002" // Query or data file could not be parsed
	ErrCodeSchemaFailed = "E004" // Schema directory failed to load
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeUnknownName  = "E006" // Unknown entity, backend or dialect
	ErrCodeBackend      = "E020" // Backend connection or execution failed
	ErrCodeValidation   = "E030" // Query failed schema validation
)

// LoadError represents an error that occurred while loading CLI input.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QueryFile is the on-disk form of a query. Aggregate is only read by the
// aggregate command.
type QueryFile struct {
	Filter    query.Filter          `yaml:"filter" json:"filter"`
	Sorting   []query.SortField     `yaml:"sorting,omitempty" json:"sorting,omitempty"`
	Paging    query.Paging          `yaml:"paging,omitempty" json:"paging,omitempty"`
	Aggregate *query.AggregateQuery `yaml:"aggregate,omitempty" json:"aggregate,omitempty"`
}

// Query returns the filter, sorting and paging of f.
func (f *QueryFile) Query() query.Query {
	return query.Query{Filter: f.Filter, Sorting: f.Sorting, Paging: f.Paging}
}

// readFile reads path, mapping a missing file to ErrCodeNotFound.
func readFile(kind, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s file not found: %s", kind, path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading %s file: %v", kind, err)}
	}
	return data, nil
}

// LoadQueryFile reads a YAML or JSON query file.
func LoadQueryFile(path string) (*QueryFile, error) {
	data, err := readFile("query", path)
	if err != nil {
		return nil, err
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		var qErr *query.Error
		if errors.As(err, &qErr) {
			return nil, qErr
		}
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return &qf, nil
}

// LoadRecords reads a YAML or JSON list of records.
func LoadRecords(path string) ([]query.Record, error) {
	data, err := readFile("data", path)
	if err != nil {
		return nil, err
	}
	var recs []query.Record
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return recs, nil
}

// LoadSchema compiles the CUE entity descriptors in dir.
func LoadSchema(dir string) (*schema.Registry, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	registry, err := schema.LoadDir(dir)
	if err != nil {
		var cErr *schema.CompileError
		if errors.As(err, &cErr) {
			return nil, &LoadError{Code: ErrCodeSchemaFailed, Message: fmt.Sprintf("%s: %s", cErr.Field, cErr.Message), Pos: cErr.Pos}
		}
		return nil, &LoadError{Code: ErrCodeSchemaFailed, Message: err.Error()}
	}
	return registry, nil
}

// lookupEntity resolves name in registry.
func lookupEntity(registry *schema.Registry, name string) (*schema.Entity, error) {
	e, ok := registry.Entity(name)
	if !ok {
		return nil, &LoadError{Code: ErrCodeUnknownName, Message: fmt.Sprintf("unknown entity %q (have %v)", name, registry.EntityNames())}
	}
	return e, nil
}
