package qc

import (
	"fmt"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
)

// Suite runs an ordered set of tests against an observation.
type Suite struct {
	tests []Test
}

// NewSuite validates tests and returns a suite running them in order. Test
// names must be unique since they label the results.
func NewSuite(tests ...Test) (*Suite, error) {
	seen := make(map[string]struct{}, len(tests))
	for i, t := range tests {
		if t == nil {
			return nil, fmt.Errorf("test #%d is nil: %w", i, model.ErrInvalidInput)
		}
		if _, dup := seen[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate test name %q: %w", t.Name(), model.ErrInvalidInput)
		}
		seen[t.Name()] = struct{}{}
		if v, ok := t.(validator); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
	}
	return &Suite{tests: append([]Test(nil), tests...)}, nil
}

// Names returns the test names in execution order.
func (s *Suite) Names() []string {
	out := make([]string, len(s.tests))
	for i, t := range s.tests {
		out[i] = t.Name()
	}
	return out
}

// Len returns the number of tests.
func (s *Suite) Len() int { return len(s.tests) }

// Evaluate runs every test and combines their flags. The first error stops
// the evaluation of this observation.
func (s *Suite) Evaluate(env Env, obs model.Observation) (model.Assessment, error) {
	a := model.Assessment{
		Observation: obs,
		Results:     make([]model.TestResult, 0, len(s.tests)),
	}
	flags := make([]flag.Flag, 0, len(s.tests))
	for _, t := range s.tests {
		out, err := t.Evaluate(env, obs)
		if err != nil {
			return model.Assessment{}, fmt.Errorf("%s on %s: %w", t.Name(), obs.Key(), err)
		}
		a.Results = append(a.Results, model.TestResult{
			StationID: obs.StationID,
			Time:      obs.Time,
			Test:      t.Name(),
			Flag:      out.Flag,
			Score:     out.Score,
			HasScore:  out.HasScore,
		})
		flags = append(flags, out.Flag)
	}
	a.Flag = flag.Combine(flags...)
	return a, nil
}
