package conformance

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// session is one opened backend of a scenario run.
type session struct {
	backend  Backend
	services Services
	close    func() error
}

// Run executes a scenario against every backend and returns the result.
//
// Each backend is seeded with the scenario fixtures in a fresh, isolated
// instance. Every step runs on every backend; a step fails when backends
// disagree or when an outcome misses the step's expectations. The returned
// error covers setup problems only.
func Run(ctx context.Context, sc *Scenario, backends ...Backend) (*Result, error) {
	if len(backends) == 0 {
		backends = DefaultBackends()
	}

	registry, err := schema.LoadDir(sc.Schema)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s: load schema", sc.Name)
	}
	for name := range sc.Fixtures {
		if _, ok := registry.Entity(name); !ok {
			return nil, errors.Errorf("scenario %s: fixtures for unknown entity %s", sc.Name, name)
		}
	}

	sessions := make([]session, 0, len(backends))
	defer func() {
		for _, s := range sessions {
			_ = s.close()
		}
	}()
	for _, b := range backends {
		services, closeFn, err := b.Open(ctx, registry, sc.Fixtures)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario %s: open %s", sc.Name, b.Name())
		}
		sessions = append(sessions, session{backend: b, services: services, close: closeFn})
	}

	result := NewResult()
	for _, step := range sc.Steps {
		e, ok := registry.Entity(step.Entity)
		if !ok {
			result.AddError(fmt.Sprintf("%s: unknown entity %s", step.Name, step.Entity))
			continue
		}

		sr := StepResult{Step: step.Name}
		for _, s := range sessions {
			sr.Outcomes = append(sr.Outcomes, runStep(ctx, s, e, step))
		}
		result.Steps = append(result.Steps, sr)

		first := sr.Outcomes[0]
		for _, o := range sr.Outcomes[1:] {
			if !o.Equal(first) {
				result.AddError(fmt.Sprintf("%s: %s returned %s, %s returned %s",
					step.Name, first.Backend, first.describe(), o.Backend, o.describe()))
			}
		}
		for _, o := range sr.Outcomes {
			for _, msg := range checkExpect(step.Expect, o) {
				result.AddError(fmt.Sprintf("%s [%s]: %s", step.Name, o.Backend, msg))
			}
		}
	}

	return result, nil
}

// runStep executes step on one backend and normalizes its outcome.
func runStep(ctx context.Context, s session, e *schema.Entity, step Step) *Outcome {
	o := &Outcome{Backend: s.backend.Name()}
	svc := s.services[e.Name]

	var err error
	switch {
	case step.Query != nil:
		var recs []query.Record
		recs, err = svc.Query(ctx, *step.Query)
		if err == nil {
			o.IDs = make([]any, 0, len(recs))
			o.Records = make([]map[string]any, 0, len(recs))
			for _, rec := range recs {
				o.IDs = append(o.IDs, Normalize(rec[e.IDField]))
				o.Records = append(o.Records, project(e, rec))
			}
		}
	case step.Count != nil:
		var n int64
		n, err = svc.Count(ctx, *step.Count)
		if err == nil {
			o.Count = &n
		}
	case step.Aggregate != nil:
		var resps []query.AggregateResponse
		resps, err = svc.Aggregate(ctx, step.Aggregate.Filter, step.Aggregate.AggregateQuery)
		if err == nil {
			rows := make([]map[string]any, 0, len(resps))
			for _, r := range resps {
				rows = append(rows, r.Flatten())
			}
			o.Rows = normalizeRows(rows)
		}
	}

	if err != nil {
		o.ErrCode = errorCode(err)
	}
	return o
}

func errorCode(err error) string {
	if code := query.CodeOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

// RunAll runs every scenario and merges their failures into one error.
func RunAll(ctx context.Context, scenarios []*Scenario, backends ...Backend) error {
	var result error
	for _, sc := range scenarios {
		r, err := Run(ctx, sc, backends...)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		for _, msg := range r.Errors {
			result = multierror.Append(result, fmt.Errorf("%s: %s", sc.Name, msg))
		}
	}
	return result
}
