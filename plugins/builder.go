package plugins

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/docenthq/docent/internal/config"
	"github.com/docenthq/docent/internal/github"
	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/pipeline"
	"github.com/docenthq/docent/internal/source"
	"github.com/docenthq/docent/internal/steps"
)

// Source types a definition may declare.
const (
	SourcePRs   = "github_prs"
	SourceSheet = "csv_sheet"
)

// BuildOptions carries the project surroundings a definition builds
// against.
type BuildOptions struct {
	Registry *steps.Registry
	Config   *config.Config
	Book     *logbook.Logbook

	// Client overrides the GitHub API client. Intended for tests.
	Client source.Client
}

// Build assembles a runnable pipeline from def: the source first, then
// every declared step through the factory registry, in declaration order.
func Build(def PipelineDefinition, opts BuildOptions) (*pipeline.Pipeline, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil || opts.Config == nil {
		return nil, fmt.Errorf("plugin: build needs a step registry and a project config")
	}
	normalized := def.Normalized()

	p := pipeline.New(
		pipeline.WithLogbook(opts.Book),
		pipeline.WithFailFast(opts.Config.FailFast()),
	)

	src, err := buildSource(normalized.Source, opts)
	if err != nil {
		return nil, fmt.Errorf("plugin: pipeline %s: %w", normalized.Name, err)
	}
	if err := p.AddSource(src); err != nil {
		return nil, fmt.Errorf("plugin: pipeline %s: %w", normalized.Name, err)
	}

	for _, stepDef := range normalized.Steps {
		step, err := opts.Registry.Build(stepDef.Type, stepDef.Options)
		if err != nil {
			return nil, fmt.Errorf("plugin: pipeline %s: step %s: %w", normalized.Name, stepDef.Name, err)
		}
		if err := p.AddStep(stepDef.Name, step); err != nil {
			return nil, fmt.Errorf("plugin: pipeline %s: %w", normalized.Name, err)
		}
	}
	return p, nil
}

func buildSource(def SourceDefinition, opts BuildOptions) (pipeline.Source, error) {
	switch def.Type {
	case SourcePRs:
		return buildPRsSource(def.Options, opts)
	case SourceSheet:
		return buildSheetSource(def.Options, opts)
	default:
		return nil, fmt.Errorf("unknown source type %q (have %s, %s): %w",
			def.Type, SourcePRs, SourceSheet, pipeline.ErrBadConfig)
	}
}

// buildPRsSource wires a pull-request feed. The repository is required;
// state, include patterns, the refresh window, and forced redownload come
// from options with project-config fallbacks.
func buildPRsSource(options map[string]any, opts BuildOptions) (pipeline.Source, error) {
	cfg := opts.Config
	repo, err := stringOpt(options, "repo", "")
	if err != nil {
		return nil, err
	}
	if repo == "" {
		return nil, fmt.Errorf("%s needs a repo option: %w", SourcePRs, pipeline.ErrBadConfig)
	}
	state, err := stringOpt(options, "state", "all")
	if err != nil {
		return nil, err
	}
	include, err := stringListOpt(options, "include")
	if err != nil {
		return nil, err
	}
	refresh, err := durationOpt(options, "refresh", cfg.RefreshWindow())
	if err != nil {
		return nil, err
	}
	force, err := boolOpt(options, "force", false)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = github.NewClient(github.WithToken(cfg.GithubToken()))
	}
	srcOpts := []source.PRsOption{
		source.WithState(state),
		source.WithRefresh(refresh),
		source.WithForce(force),
		source.WithPRsLogbook(opts.Book),
	}
	if len(include) > 0 {
		srcOpts = append(srcOpts, source.WithIncludePaths(include))
	}
	return source.NewPRs(client, repo, cfg.DataDir(), srcOpts...), nil
}

// buildSheetSource wires a spreadsheet feed. The sheet path is required and
// resolves against the project directory when relative.
func buildSheetSource(options map[string]any, opts BuildOptions) (pipeline.Source, error) {
	cfg := opts.Config
	path, err := stringOpt(options, "path", "")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%s needs a path option: %w", SourceSheet, pipeline.ErrBadConfig)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.ProjectDir, path)
	}
	id, err := stringOpt(options, "id", "user.id")
	if err != nil {
		return nil, err
	}
	sortField, err := stringOpt(options, "sort", "created")
	if err != nil {
		return nil, err
	}
	columns, err := stringMapOpt(options, "columns")
	if err != nil {
		return nil, err
	}
	files, err := stringMapOpt(options, "files")
	if err != nil {
		return nil, err
	}

	srcOpts := []source.SheetOption{
		source.WithID(id),
		source.WithSort(sortField),
		source.WithSheetLogbook(opts.Book),
	}
	if len(columns) > 0 {
		srcOpts = append(srcOpts, source.WithColumns(columns))
	}
	if len(files) > 0 {
		srcOpts = append(srcOpts, source.WithFiles(files))
	}
	return source.NewSheet(path, cfg.DataDir(), srcOpts...), nil
}

func stringOpt(options map[string]any, key, fallback string) (string, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s must be a string, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
	return s, nil
}

func boolOpt(options map[string]any, key string, fallback bool) (bool, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %s must be a bool, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
	return b, nil
}

func durationOpt(options map[string]any, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("option %s must be a duration string, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("option %s: %v: %w", key, err, pipeline.ErrBadConfig)
	}
	return d, nil
}

func stringListOpt(options map[string]any, key string) ([]string, error) {
	v, ok := options[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, elem := range list {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("option %s[%d] is %T, not a string: %w", key, i, elem, pipeline.ErrBadConfig)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %s must be a list, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
}

func stringMapOpt(options map[string]any, key string) (map[string]string, error) {
	v, ok := options[key]
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
				return nil, fmt.Errorf("option %s entry %s is %T, not a string: %w", key, k, elem, pipeline.ErrBadConfig)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %s must be a mapping, got %T: %w", key, v, pipeline.ErrBadConfig)
	}
}
