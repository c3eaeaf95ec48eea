// Package pipeline orchestrates grading steps over the submissions of a
// single source. Each (submission, step) pair executes at most once: results
// persist into the submission's document immediately after a step succeeds,
// and a recorded result is never recomputed. A failing step quarantines its
// submission for the rest of the run while every other submission continues.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/logbook"
)

// Pipeline holds the ordered step registry and the source feeding it.
// Registration order is execution order.
type Pipeline struct {
	steps    []NamedStep
	index    map[string]int
	source   Source
	book     *logbook.Logbook
	failFast bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogbook routes run progress and step failures into book.
func WithLogbook(book *logbook.Logbook) Option {
	return func(p *Pipeline) {
		p.book = book
	}
}

// WithFailFast stops the whole run at the first step failure instead of
// quarantining the submission. Useful when debugging a step.
func WithFailFast(on bool) Option {
	return func(p *Pipeline) {
		p.failFast = on
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		index: map[string]int{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddStep registers a step under name. A step's pre-steps register before it
// and its post-steps after it, as "<name>.<sub>". A Source registers as the
// pipeline's single submission feed instead of as a per-item step; only its
// post-steps join the registry.
func (p *Pipeline) AddStep(name string, s Step) error {
	if name == "" {
		return fmt.Errorf("pipeline: step name is required")
	}
	if s == nil {
		return fmt.Errorf("pipeline: step %s is nil", name)
	}

	if src, ok := s.(Source); ok {
		if p.source != nil {
			return fmt.Errorf("pipeline: source already registered")
		}
		p.source = src
		if post, ok := s.(PostStepper); ok {
			if err := p.registerNamespaced(name, post.PostSteps()); err != nil {
				return err
			}
		}
		return nil
	}

	if pre, ok := s.(PreStepper); ok {
		if err := p.registerNamespaced(name, pre.PreSteps()); err != nil {
			return err
		}
	}
	if err := p.register(name, s); err != nil {
		return err
	}
	if post, ok := s.(PostStepper); ok {
		if err := p.registerNamespaced(name, post.PostSteps()); err != nil {
			return err
		}
	}
	return nil
}

// MustAddStep registers a step and panics on error. Intended for wiring
// code where a bad registration is a programming mistake.
func (p *Pipeline) MustAddStep(name string, s Step) {
	if err := p.AddStep(name, s); err != nil {
		panic(err)
	}
}

// AddSource registers the submission feed without naming a step.
func (p *Pipeline) AddSource(src Source) error {
	if src == nil {
		return fmt.Errorf("pipeline: source is nil")
	}
	if p.source != nil {
		return fmt.Errorf("pipeline: source already registered")
	}
	p.source = src
	if post, ok := src.(PostStepper); ok {
		return p.registerNamespaced("source", post.PostSteps())
	}
	return nil
}

// Steps returns the registered step names in execution order.
func (p *Pipeline) Steps() []string {
	out := make([]string, len(p.steps))
	for i, ns := range p.steps {
		out[i] = ns.Name
	}
	return out
}

// Source returns the registered submission feed, nil before registration.
func (p *Pipeline) Source() Source {
	return p.source
}

func (p *Pipeline) register(name string, s Step) error {
	if _, exists := p.index[name]; exists {
		return fmt.Errorf("pipeline: step %s already registered", name)
	}
	p.index[name] = len(p.steps)
	p.steps = append(p.steps, NamedStep{Name: name, Step: s})
	return nil
}

func (p *Pipeline) registerNamespaced(prefix string, subs []NamedStep) error {
	for _, sub := range subs {
		if err := p.register(prefix+"."+sub.Name, sub.Step); err != nil {
			return err
		}
	}
	return nil
}

// Failure records one quarantined (submission, step) pair.
type Failure struct {
	Key     string
	Step    string
	Kind    string
	Message string
}

// RunReport summarizes one ExecutePending pass.
type RunReport struct {
	RunID    string
	Executed int
	Skipped  int
	Failures []Failure
}

// ExecutePending runs every step that has no recorded result yet, in
// registration order across the source's current submissions. Results
// persist immediately after each success. A step failure quarantines its
// submission for the rest of the run; in fail-fast mode it aborts the run
// with the step's error. A persistence failure always aborts the run, since
// continuing would risk recomputing recorded work.
func (p *Pipeline) ExecutePending(ctx context.Context) (*RunReport, error) {
	if p.source == nil {
		return nil, ErrNoSource
	}
	entries, err := p.source.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: collect: %w", err)
	}

	rep := &RunReport{RunID: uuid.NewString()}
	halted := map[string]bool{}
	p.book.Info("run %s: %d submissions, %d steps", rep.RunID, len(entries), len(p.steps))

	for _, ns := range p.steps {
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if halted[e.Key] {
				continue
			}
			if e.Item.HasStep(ns.Name) {
				rep.Skipped++
				continue
			}

			res, err := ns.Step.Process(ctx, e.Item)
			if err != nil {
				kind := FailureKind(err)
				p.book.Error("[%s:%s] %s: %v", ns.Name, e.Key, kind, err)
				halted[e.Key] = true
				rep.Failures = append(rep.Failures, Failure{
					Key:     e.Key,
					Step:    ns.Name,
					Kind:    kind,
					Message: err.Error(),
				})
				if p.failFast {
					return rep, fmt.Errorf("pipeline: step %s failed for %s: %w", ns.Name, e.Key, err)
				}
				continue
			}

			e.Item.SetStep(ns.Name, res)
			if _, err := p.source.UpdateSteps(e.Key, map[string]item.Result{ns.Name: res}); err != nil {
				return rep, fmt.Errorf("pipeline: record %s for %s: %w", ns.Name, e.Key, err)
			}
			rep.Executed++
		}
	}

	p.book.Info("run %s: %d recorded, %d skipped, %d failures",
		rep.RunID, rep.Executed, rep.Skipped, len(rep.Failures))
	return rep, nil
}
