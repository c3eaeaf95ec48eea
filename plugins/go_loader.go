package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/steps"
)

const (
	goDefinitionFuncName = "PipelineDefinitions"
	goReducersFuncName   = "Reducers"
	goTransformsFuncName = "Transforms"
)

// LoadGoDefinitionDir evaluates every .go file in dir and collects pipeline
// definitions declared via PipelineDefinitions().
func LoadGoDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		fileDefs, err := loadGoDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func loadGoDefinitionFile(path string) ([]DefinitionFile, error) {
	i, err := interpretFile(path)
	if err != nil {
		return nil, err
	}
	fnValue, err := i.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() ([]map[string]any, error): %w", path, goDefinitionFuncName, err)
	}
	defs, callErr := invokeDefinitionFunc(fnValue)
	if callErr != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, callErr)
	}
	files := make([]DefinitionFile, 0, len(defs))
	for idx, raw := range defs {
		payload, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s definition[%d]: %w", path, idx, err)
		}
		parsed, err := ParseDefinitionYAML(payload)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s definition[%d]: %w", path, idx, err)
		}
		files = append(files, DefinitionFile{Definition: parsed, Path: fmt.Sprintf("%s#%d", path, idx+1)})
	}
	return files, nil
}

// LoadHelperDir evaluates every .go file in dir and registers the reducers
// and transforms it declares into reg. Plugin reducers see the parsed test
// report as (passed, failed, total); transforms map one string to another.
// A helper file must declare at least one of the two functions.
func LoadHelperDir(dir string, reg *steps.Registry) error {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" || reg == nil {
		return nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		if err := loadHelperFile(filepath.Join(trimmed, entry.Name()), reg); err != nil {
			return err
		}
	}
	return nil
}

func loadHelperFile(path string, reg *steps.Registry) error {
	i, err := interpretFile(path)
	if err != nil {
		return err
	}

	reducersVal, foundReducers, err := evalHelperFunc(i, goReducersFuncName)
	if err != nil {
		return fmt.Errorf("plugin: %s: %w", path, err)
	}
	transformsVal, foundTransforms, err := evalHelperFunc(i, goTransformsFuncName)
	if err != nil {
		return fmt.Errorf("plugin: %s: %w", path, err)
	}
	if !foundReducers && !foundTransforms {
		return fmt.Errorf("plugin: %s defines neither %s nor %s", path, goReducersFuncName, goTransformsFuncName)
	}

	if foundReducers {
		reducers, ok := reducersVal.(map[string]func(passed, failed, total int) (float64, error))
		if !ok {
			return fmt.Errorf("plugin: %s: %s returned %T, want map[string]func(int, int, int) (float64, error)", path, goReducersFuncName, reducersVal)
		}
		for name, fn := range reducers {
			if err := reg.RegisterReducer(name, wrapReportReducer(fn)); err != nil {
				return fmt.Errorf("plugin: %s: %w", path, err)
			}
		}
	}
	if foundTransforms {
		transforms, ok := transformsVal.(map[string]func(string) (string, error))
		if !ok {
			return fmt.Errorf("plugin: %s: %s returned %T, want map[string]func(string) (string, error)", path, goTransformsFuncName, transformsVal)
		}
		for name, fn := range transforms {
			if err := reg.RegisterTransform(name, steps.Transform(fn)); err != nil {
				return fmt.Errorf("plugin: %s: %w", path, err)
			}
		}
	}
	return nil
}

// wrapReportReducer adapts a plugin reducer, which only sees report
// counters, to the step contract over recorded results.
func wrapReportReducer(fn func(passed, failed, total int) (float64, error)) steps.Reducer {
	return func(res item.Result) (float64, error) {
		if res.Kind != item.KindReport || res.Report == nil {
			return 0, fmt.Errorf("plugin reducer needs a test report, got %s", res.Kind)
		}
		return fn(res.Report.Passed, res.Report.Failed, res.Report.Total)
	}
}

func interpretFile(path string) (*interp.Interpreter, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	i.Use(stdlib.Symbols)
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	return i, nil
}

// evalHelperFunc resolves a zero-argument function by name in the interpreter
// and returns the single value it yields. Missing names report found=false;
// anything else unexpected is an error.
func evalHelperFunc(i *interp.Interpreter, name string) (any, bool, error) {
	value, err := i.Eval(name)
	if err != nil {
		return nil, false, nil
	}
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, false, fmt.Errorf("%s is not a function", name)
	}
	results := value.Call(nil)
	if len(results) != 1 {
		return nil, false, fmt.Errorf("%s must return a single map", name)
	}
	return results[0].Interface(), true, nil
}

func invokeDefinitionFunc(value reflect.Value) ([]map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goDefinitionFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return ([]map[string]any[, error])", goDefinitionFuncName)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok && e != nil {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned non-error second value", goDefinitionFuncName)
	}
	defsVal := results[0]
	if defs, ok := defsVal.Interface().([]map[string]any); ok {
		return defs, nil
	}
	if defsVal.Kind() == reflect.Slice {
		result := make([]map[string]any, defsVal.Len())
		for i := 0; i < defsVal.Len(); i++ {
			entry := defsVal.Index(i).Interface()
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is not map[string]any", goDefinitionFuncName, i)
			}
			result[i] = m
		}
		return result, nil
	}
	return nil, fmt.Errorf("%s must return []map[string]any", goDefinitionFuncName)
}
