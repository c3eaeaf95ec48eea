package steps

import (
	"context"
	"fmt"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/pipeline"
)

// Reducer converts a recorded step result into a numeric grade.
type Reducer func(item.Result) (float64, error)

// PassRatio grades a test report as passed/total.
func PassRatio(r item.Result) (float64, error) {
	if r.Kind != item.KindReport || r.Report == nil {
		return 0, fmt.Errorf("steps: grading needs a test report, got %q", r.Kind)
	}
	if r.Report.Total == 0 {
		return 0, fmt.Errorf("steps: test report has no cases")
	}
	return float64(r.Report.Passed) / float64(r.Report.Total), nil
}

// Grader reduces a previously recorded result into a grade.
type Grader struct {
	step   string
	reduce Reducer
}

// GraderOption configures a Grader.
type GraderOption func(*Grader)

// WithReducer overrides the reduction. Defaults to PassRatio.
func WithReducer(fn Reducer) GraderOption {
	return func(g *Grader) { g.reduce = fn }
}

// NewGrader creates a grader reading the result recorded under step.
func NewGrader(step string, opts ...GraderOption) *Grader {
	g := &Grader{step: step, reduce: PassRatio}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process reduces the named step's result into a score.
func (g *Grader) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	res, ok := it.Steps[g.step]
	if !ok {
		return item.Result{}, fmt.Errorf("steps: grader needs step %s: %w", g.step, pipeline.ErrMissingDependency)
	}
	grade, err := g.reduce(res)
	if err != nil {
		return item.Result{}, err
	}
	return item.ScoreResult(grade), nil
}
