package conformance

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/query"
)

// Scenario defines a conformance test scenario.
// A scenario seeds every backend with the same fixtures and runs a list of
// steps against each of them. Backends must agree with each other and with
// the step's expectations.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the directory holding the CUE entity descriptors.
	// Relative paths are resolved against the scenario file location.
	Schema string `yaml:"schema"`

	// Fixtures are the records seeded into each backend, keyed by entity.
	// Records should be listed in id order so that backends ordering ties by
	// id agree with backends keeping insertion order.
	Fixtures map[string][]query.Record `yaml:"fixtures"`

	// Steps are executed in order against every backend.
	Steps []Step `yaml:"steps"`
}

// Step runs one read operation. Exactly one of Query, Count and Aggregate is
// set.
type Step struct {
	// Name identifies the step in failure messages and snapshots.
	Name string `yaml:"name"`

	// Entity is the entity the operation reads.
	Entity string `yaml:"entity"`

	Query     *query.Query   `yaml:"query,omitempty"`
	Count     *query.Filter  `yaml:"count,omitempty"`
	Aggregate *AggregateStep `yaml:"aggregate,omitempty"`

	Expect Expect `yaml:"expect"`
}

// AggregateStep is an aggregate query with the filter selecting its input.
type AggregateStep struct {
	Filter               query.Filter `yaml:"filter,omitempty"`
	query.AggregateQuery `yaml:",inline"`
}

// Expect holds the expected outcome of a step. Unset fields are not checked.
type Expect struct {
	// IDs are the ids of the returned records, in order.
	IDs []any `yaml:"ids,omitempty"`

	// Count is the expected count.
	Count *int64 `yaml:"count,omitempty"`

	// Rows are the expected aggregate rows, flattened with the alias
	// contract (count_id, groupBy_authorId, ...), in order.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Error is the expected query error code. When set the step must fail.
	Error string `yaml:"error,omitempty"`
}

// Kind names the operation a step runs.
func (s Step) Kind() string {
	switch {
	case s.Query != nil:
		return "query"
	case s.Count != nil:
		return "count"
	case s.Aggregate != nil:
		return "aggregate"
	}
	return ""
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "expects:" vs "expect:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml file of dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, sc)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Steps))
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
		if seen[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		seen[step.Name] = true
	}

	return nil
}

// validateStep validates a single step.
func validateStep(index int, s *Step) error {
	if s.Name == "" {
		return fmt.Errorf("steps[%d]: name is required", index)
	}
	if s.Entity == "" {
		return fmt.Errorf("steps[%d]: entity is required", index)
	}

	kinds := 0
	for _, set := range []bool{s.Query != nil, s.Count != nil, s.Aggregate != nil} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of query, count or aggregate is required", index)
	}

	e := s.Expect
	switch {
	case e.Count != nil && s.Count == nil:
		return fmt.Errorf("steps[%d]: expect.count requires a count step", index)
	case e.Rows != nil && s.Aggregate == nil:
		return fmt.Errorf("steps[%d]: expect.rows requires an aggregate step", index)
	case e.IDs != nil && s.Query == nil:
		return fmt.Errorf("steps[%d]: expect.ids requires a query step", index)
	case e.Error != "" && (e.IDs != nil || e.Count != nil || e.Rows != nil):
		return fmt.Errorf("steps[%d]: expect.error excludes other expectations", index)
	}

	return nil
}
