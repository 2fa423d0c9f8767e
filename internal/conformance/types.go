package conformance

// Outcome is the normalized result of one step on one backend. Exactly one
// of Records, Count and Rows is set unless the step failed.
type Outcome struct {
	Backend string `json:"backend"`

	// IDs are the ids of Records, in order.
	IDs []any `json:"ids,omitempty"`

	// Records are the returned records projected to the entity's declared
	// fields.
	Records []map[string]any `json:"records,omitempty"`

	Count *int64 `json:"count,omitempty"`

	// Rows are the flattened aggregate rows.
	Rows []map[string]any `json:"rows,omitempty"`

	// ErrCode is the query error code, or the error text for any other
	// error.
	ErrCode string `json:"error,omitempty"`
}

// StepResult holds the outcome of one step on every backend.
type StepResult struct {
	Step     string     `json:"step"`
	Outcomes []*Outcome `json:"outcomes"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every backend agreed and met every expectation.
	Pass bool `json:"pass"`

	// Steps holds the per-backend outcomes in step order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
