package steps

import (
	"context"
	"fmt"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/pipeline"
)

// Competencies reads a list of competency names out of a prior step's
// result and records them as awarded tags.
type Competencies struct {
	step  string
	field string
}

// CompetenciesOption configures a Competencies step.
type CompetenciesOption func(*Competencies)

// WithField names the result field holding the competency list. Defaults
// to "grade".
func WithField(name string) CompetenciesOption {
	return func(c *Competencies) { c.field = name }
}

// NewCompetencies creates a competency extractor reading the result
// recorded under step.
func NewCompetencies(step string, opts ...CompetenciesOption) *Competencies {
	c := &Competencies{step: step, field: "grade"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process turns the listed competencies into a tag set.
func (c *Competencies) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	res, ok := it.Steps[c.step]
	if !ok {
		return item.Result{}, fmt.Errorf("steps: competencies needs step %s: %w", c.step, pipeline.ErrMissingDependency)
	}
	fields, ok := res.Spread()
	if !ok {
		return item.Result{}, fmt.Errorf("steps: step %s result carries no fields: %w", c.step, pipeline.ErrBadConfig)
	}
	value, ok := fields[c.field]
	if !ok {
		return item.Result{}, fmt.Errorf("steps: step %s result has no field %s: %w", c.step, c.field, pipeline.ErrMissingDependency)
	}
	names, err := stringList(value)
	if err != nil {
		return item.Result{}, fmt.Errorf("steps: competency field %s: %v: %w", c.field, err, pipeline.ErrBadConfig)
	}

	tags := make(map[string]bool, len(names))
	for _, name := range names {
		tags[name] = true
	}
	return item.TagsResult(tags), nil
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not a string", i, elem)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is %T, not a list", v)
	}
}
