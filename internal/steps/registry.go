// Package steps provides the concrete processing steps grading pipelines
// are assembled from: reference-file inclusion, test running on the host or
// in a Docker sandbox, grade reduction, competency tagging, and school-id
// resolution. A Registry builds steps from definition options and carries
// the named reducers and transforms plugin code contributes.
package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/pipeline"
)

// Factory builds a step from the options of a definition file entry.
type Factory func(options map[string]any) (pipeline.Step, error)

// Registry maps step types to factories plus the named reducers and
// transforms factories may reference.
type Registry struct {
	factories  map[string]Factory
	reducers   map[string]Reducer
	transforms map[string]Transform
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:  map[string]Factory{},
		reducers:   map[string]Reducer{},
		transforms: map[string]Transform{},
	}
}

// Register adds a step factory under kind.
func (r *Registry) Register(kind string, factory Factory) error {
	if strings.TrimSpace(kind) == "" {
		return fmt.Errorf("steps: factory needs a type name")
	}
	if factory == nil {
		return fmt.Errorf("steps: factory %s is nil", kind)
	}
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("steps: factory %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// RegisterReducer adds a named grade reducer.
func (r *Registry) RegisterReducer(name string, fn Reducer) error {
	if strings.TrimSpace(name) == "" || fn == nil {
		return fmt.Errorf("steps: reducer needs a name and a function")
	}
	if _, exists := r.reducers[name]; exists {
		return fmt.Errorf("steps: reducer %s already registered", name)
	}
	r.reducers[name] = fn
	return nil
}

// RegisterTransform adds a named id transform.
func (r *Registry) RegisterTransform(name string, fn Transform) error {
	if strings.TrimSpace(name) == "" || fn == nil {
		return fmt.Errorf("steps: transform needs a name and a function")
	}
	if _, exists := r.transforms[name]; exists {
		return fmt.Errorf("steps: transform %s already registered", name)
	}
	r.transforms[name] = fn
	return nil
}

// Build constructs a step of the given kind.
func (r *Registry) Build(kind string, options map[string]any) (pipeline.Step, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("steps: unknown step type %q (have %s): %w",
			kind, strings.Join(r.Kinds(), ", "), pipeline.ErrBadConfig)
	}
	return factory(options)
}

// Kinds lists the registered step types in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) reducer(name string) (Reducer, error) {
	fn, ok := r.reducers[name]
	if !ok {
		return nil, fmt.Errorf("steps: unknown reducer %q: %w", name, pipeline.ErrBadConfig)
	}
	return fn, nil
}

func (r *Registry) transform(name string) (Transform, error) {
	fn, ok := r.transforms[name]
	if !ok {
		return nil, fmt.Errorf("steps: unknown transform %q: %w", name, pipeline.ErrBadConfig)
	}
	return fn, nil
}

// DefaultRegistry returns a registry with the built-in step factories and
// the pass_ratio reducer. Progress from built steps goes into book.
func DefaultRegistry(book *logbook.Logbook) *Registry {
	r := NewRegistry()
	r.RegisterReducer("pass_ratio", PassRatio)

	r.Register("include_files", func(opts map[string]any) (pipeline.Step, error) {
		dir, err := stringOption(opts, "path", "")
		if err != nil {
			return nil, err
		}
		if dir == "" {
			return nil, fmt.Errorf("steps: include_files needs a path option: %w", pipeline.ErrBadConfig)
		}
		files, err := stringListOption(opts, "files")
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("steps: include_files needs a files option: %w", pipeline.ErrBadConfig)
		}
		overwrite, err := boolOption(opts, "overwrite", true)
		if err != nil {
			return nil, err
		}
		return NewIncludeFiles(dir, files, WithOverwrite(overwrite), WithIncludeLogbook(book)), nil
	})

	r.Register("pytest", func(opts map[string]any) (pipeline.Step, error) {
		command, err := stringOption(opts, "command", defaultTestCommand)
		if err != nil {
			return nil, err
		}
		image, err := stringOption(opts, "image", "")
		if err != nil {
			return nil, err
		}
		runnerOpts := []TestRunnerOption{WithCommand(command), WithRunnerLogbook(book)}
		if image != "" {
			ex, err := NewDockerExecutor(image)
			if err != nil {
				return nil, err
			}
			runnerOpts = append(runnerOpts, WithExecutor(ex))
		}
		return NewTestRunner(runnerOpts...), nil
	})

	r.Register("grader", func(opts map[string]any) (pipeline.Step, error) {
		step, err := stringOption(opts, "step", "pytest")
		if err != nil {
			return nil, err
		}
		name, err := stringOption(opts, "reduce", "pass_ratio")
		if err != nil {
			return nil, err
		}
		fn, err := r.reducer(name)
		if err != nil {
			return nil, err
		}
		return NewGrader(step, WithReducer(fn)), nil
	})

	r.Register("competencies", func(opts map[string]any) (pipeline.Step, error) {
		step, err := stringOption(opts, "step", "")
		if err != nil {
			return nil, err
		}
		if step == "" {
			return nil, fmt.Errorf("steps: competencies needs a step option: %w", pipeline.ErrBadConfig)
		}
		field, err := stringOption(opts, "field", "grade")
		if err != nil {
			return nil, err
		}
		return NewCompetencies(step, WithField(field)), nil
	})

	r.Register("school_id", func(opts map[string]any) (pipeline.Step, error) {
		ref, err := stringOption(opts, "ref", "user.id")
		if err != nil {
			return nil, err
		}
		file, err := stringOption(opts, "file", "")
		if err != nil {
			return nil, err
		}
		field, err := stringOption(opts, "field", "")
		if err != nil {
			return nil, err
		}
		if file != "" && field == "" {
			return nil, fmt.Errorf("steps: school_id needs a field option with file: %w", pipeline.ErrBadConfig)
		}
		db, err := stringMapOption(opts, "db")
		if err != nil {
			return nil, err
		}
		name, err := stringOption(opts, "transform", "")
		if err != nil {
			return nil, err
		}

		sopts := []SchoolIDOption{WithRef(ref)}
		if file != "" {
			sopts = append(sopts, WithIDFile(file, field))
		}
		if len(db) > 0 {
			sopts = append(sopts, WithLookup(db))
		}
		if name != "" {
			fn, err := r.transform(name)
			if err != nil {
				return nil, err
			}
			sopts = append(sopts, WithTransform(fn))
		}
		return NewSchoolID(sopts...), nil
	})

	return r
}

func stringOption(opts map[string]any, key, fallback string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("steps: option %s must be a string, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
	return s, nil
}

func boolOption(opts map[string]any, key string, fallback bool) (bool, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("steps: option %s must be a bool, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
	return b, nil
}

func stringListOption(opts map[string]any, key string) ([]string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, err := stringList(v)
	if err != nil {
		return nil, fmt.Errorf("steps: option %s: %v: %w", key, err, pipeline.ErrBadConfig)
	}
	return list, nil
}

func stringMapOption(opts map[string]any, key string) (map[string]string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, elem := range m {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("steps: option %s entry %s is %T, not a string: %w", key, k, elem, pipeline.ErrBadConfig)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("steps: option %s must be a mapping, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
}
