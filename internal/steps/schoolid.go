package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/pipeline"
)

// Transform post-processes a resolved school id, e.g. to strip a campus
// prefix or zero-pad.
type Transform func(string) (string, error)

// SchoolID resolves the institutional identifier of a submission. The id
// comes from a dotted reference into the item's fields, optionally replaced
// by a field parsed out of a file the student filled in, then mapped
// through a lookup table and a transform.
type SchoolID struct {
	filename  string
	field     string
	ref       string
	db        map[string]string
	transform Transform
}

// SchoolIDOption configures a SchoolID step.
type SchoolIDOption func(*SchoolID)

// WithIDFile reads field out of name inside each submission directory.
// Submissions without the file fall back to the reference value.
func WithIDFile(name, field string) SchoolIDOption {
	return func(s *SchoolID) {
		s.filename = name
		s.field = field
	}
}

// WithRef sets the dotted item field identifying the student. Defaults to
// "user.id".
func WithRef(path string) SchoolIDOption {
	return func(s *SchoolID) { s.ref = path }
}

// WithLookup maps reference values to canonical ids.
func WithLookup(db map[string]string) SchoolIDOption {
	return func(s *SchoolID) { s.db = db }
}

// WithTransform post-processes the resolved id.
func WithTransform(fn Transform) SchoolIDOption {
	return func(s *SchoolID) { s.transform = fn }
}

// NewSchoolID creates a school-id resolution step.
func NewSchoolID(opts ...SchoolIDOption) *SchoolID {
	s := &SchoolID{ref: "user.id"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process resolves and records the submission's school id.
func (s *SchoolID) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	ref, ok := it.FieldString(s.ref)
	if !ok {
		return item.Result{}, fmt.Errorf("steps: item has no field %s: %w", s.ref, pipeline.ErrMissingDependency)
	}

	value := ref
	if s.filename != "" {
		path := filepath.Join(it.Path, s.filename)
		if _, err := os.Stat(path); err == nil {
			parsed, err := s.parseIDFile(path)
			if err != nil {
				return item.Result{}, err
			}
			value = parsed
		}
	}
	if mapped, ok := s.db[ref]; ok {
		value = mapped
	}

	if s.transform != nil {
		out, err := s.transform(value)
		if err != nil {
			return item.Result{}, fmt.Errorf("steps: transform school id %q: %w", value, err)
		}
		value = out
	}
	return item.TextResult(value), nil
}

func (s *SchoolID) parseIDFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("steps: read id file %s: %w", path, err)
	}

	var fields map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &fields); err != nil {
			return "", fmt.Errorf("steps: parse id file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return "", fmt.Errorf("steps: parse id file %s: %w", path, err)
		}
	case ".go":
		return evalIDFile(string(data), s.field)
	default:
		return "", fmt.Errorf("steps: id file %s has an unsupported extension: %w", path, pipeline.ErrBadConfig)
	}

	value, ok := fields[s.field]
	if !ok {
		return "", fmt.Errorf("steps: id file %s has no field %s", path, s.field)
	}
	str, ok := item.Stringify(value)
	if !ok {
		return "", fmt.Errorf("steps: id file %s field %s is not a scalar", path, s.field)
	}
	return str, nil
}

// evalIDFile interprets a Go source id file and reads the named binding.
func evalIDFile(src, field string) (string, error) {
	i := interp.New(interp.Options{})
	i.Use(stdlib.Symbols)
	if _, err := i.Eval(src); err != nil {
		return "", fmt.Errorf("steps: interpret id file: %w", err)
	}
	v, err := i.Eval(field)
	if err != nil {
		return "", fmt.Errorf("steps: id file does not define %s: %w", field, err)
	}
	str, ok := item.Stringify(v.Interface())
	if !ok {
		return "", fmt.Errorf("steps: id file binding %s is not a scalar", field)
	}
	return str, nil
}
