// internal/config/config.go
//
// This package handles configuration and the .docent directory structure.
// Every course project that uses docent gets a .docent/ folder created in its
// root, holding the config file, fetched submission documents, logs, pipeline
// definitions, and plugin sources.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DocentDir is the name of the directory we create in each project
	DocentDir = ".docent"

	// TokenEnv overrides github.token from the environment.
	TokenEnv = "DOCENT_GITHUB_TOKEN"

	// DebugEnv forces fail-fast runs so the first step error surfaces
	// immediately instead of quarantining the submission.
	DebugEnv = "DOCENT_DEBUG"

	defaultPipelineFile  = "default.yaml"
	defaultRefreshWindow = 2 * time.Hour
	defaultWatchDebounce = 750 * time.Millisecond
	defaultGradebookFile = "gradebook.db"
	defaultTestCommand   = "pytest --json-report"
	defaultServeAddr     = "127.0.0.1:8400"
)

const defaultProjectConfigYAML = `# docent project configuration
version: 1

github:
  # Personal access token for the GitHub API. Prefer exporting
  # DOCENT_GITHUB_TOKEN instead of committing a token here.
  token: ""

pipeline:
  # Definition file loaded when -f is not given, relative to .docent/pipelines.
  default: default.yaml
  # Stop the whole run on the first failing step instead of quarantining
  # the submission for the rest of the run.
  fail_fast: false

source:
  # Fetched submissions stay fresh this long before collect re-downloads them.
  refresh: 2h

runner:
  # Shell command executed inside each submission directory.
  command: pytest --json-report
  # Optional container image. When set, the command runs in a network-isolated
  # Docker container with the submission mounted at /workspace.
  image: ""

gradebook:
  # DuckDB file used by collect --db and export, relative to .docent.
  path: gradebook.db

watch:
  # Quiet period after a file change before the pipeline re-runs.
  debounce: 750ms
  # Address for the webhook receiver started by watch --serve.
  serve: 127.0.0.1:8400
  # Shared secret for webhook signature checks. Empty disables verification.
  secret: ""
`

// GithubSettings configures API access for pull-request sources.
type GithubSettings struct {
	Token string `yaml:"token"`
}

// PipelineSettings captures run preferences.
type PipelineSettings struct {
	Default  string `yaml:"default"`
	FailFast bool   `yaml:"fail_fast"`
}

// SourceSettings configures collection behavior shared by all sources.
type SourceSettings struct {
	Refresh string `yaml:"refresh"`
}

// RunnerSettings configures how the test step executes submission suites.
type RunnerSettings struct {
	Command string `yaml:"command"`
	Image   string `yaml:"image,omitempty"`
}

// GradebookSettings locates the grade database.
type GradebookSettings struct {
	Path string `yaml:"path"`
}

// WatchSettings configures watch mode and the webhook receiver.
type WatchSettings struct {
	Debounce string `yaml:"debounce"`
	Serve    string `yaml:"serve"`
	Secret   string `yaml:"secret,omitempty"`
}

// ProjectConfig models .docent/config.yaml.
type ProjectConfig struct {
	Version   int               `yaml:"version"`
	Github    GithubSettings    `yaml:"github"`
	Pipeline  PipelineSettings  `yaml:"pipeline"`
	Source    SourceSettings    `yaml:"source"`
	Runner    RunnerSettings    `yaml:"runner"`
	Gradebook GradebookSettings `yaml:"gradebook"`
	Watch     WatchSettings     `yaml:"watch"`
}

// Config holds the runtime configuration for docent.
type Config struct {
	// ProjectDir is the directory where the user ran `docent` from
	ProjectDir string

	// DocentProjectDir is ProjectDir/.docent
	DocentProjectDir string

	Project ProjectConfig
}

// InitDir creates the .docent directory structure in the given project
// directory. Called by `docent init` and before any command that writes state.
//
// Structure created:
// .docent/
// ├── data/        <- one JSON document per submission
// ├── logs/        <- docent.log and the run logbook
// ├── pipelines/   <- pipeline definition files (YAML or Go)
// ├── plugins/     <- reducer/transform plugin sources
// └── reference/   <- files distributed into submissions by include steps
func InitDir(projectDir string) error {
	docentDir := filepath.Join(projectDir, DocentDir)

	dirs := []string{
		filepath.Join(docentDir, "data"),
		filepath.Join(docentDir, "logs"),
		filepath.Join(docentDir, "pipelines"),
		filepath.Join(docentDir, "plugins"),
		filepath.Join(docentDir, "reference"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(docentDir, "config.yaml"))
}

// NewConfig creates a Config populated from .docent/config.yaml, falling back
// to defaults when the file is absent.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		DocentProjectDir: filepath.Join(projectDir, DocentDir),
		Project:          defaultProjectConfig(),
	}

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DataDir returns the directory holding per-submission documents.
func (c *Config) DataDir() string {
	return filepath.Join(c.DocentProjectDir, "data")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.DocentProjectDir, "logs")
}

// PipelinesDir returns the directory scanned for pipeline definitions.
func (c *Config) PipelinesDir() string {
	return filepath.Join(c.DocentProjectDir, "pipelines")
}

// PluginsDir returns the directory scanned for reducer/transform plugins.
func (c *Config) PluginsDir() string {
	return filepath.Join(c.DocentProjectDir, "plugins")
}

// ReferenceDir returns the default root for include-step source files.
func (c *Config) ReferenceDir() string {
	return filepath.Join(c.DocentProjectDir, "reference")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DocentProjectDir, "config.yaml")
}

// DefaultPipelinePath resolves the definition file used when -f is omitted.
func (c *Config) DefaultPipelinePath() string {
	name := strings.TrimSpace(c.Project.Pipeline.Default)
	if name == "" {
		name = defaultPipelineFile
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(c.PipelinesDir(), name)
}

// GradebookPath resolves the DuckDB file, relative paths landing in .docent.
func (c *Config) GradebookPath() string {
	p := strings.TrimSpace(c.Project.Gradebook.Path)
	if p == "" {
		p = defaultGradebookFile
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.DocentProjectDir, p)
}

// GithubToken returns the configured token, preferring the environment.
func (c *Config) GithubToken() string {
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		return tok
	}
	return strings.TrimSpace(c.Project.Github.Token)
}

// FailFast reports whether runs should stop at the first step failure.
// DOCENT_DEBUG=1 forces it on regardless of the config file.
func (c *Config) FailFast() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(DebugEnv))) {
	case "1", "true", "yes":
		return true
	}
	return c.Project.Pipeline.FailFast
}

// RefreshWindow returns how long fetched submissions stay fresh.
func (c *Config) RefreshWindow() time.Duration {
	return parseDurationOr(c.Project.Source.Refresh, defaultRefreshWindow)
}

// WatchDebounce returns the quiet period applied to file-change bursts.
func (c *Config) WatchDebounce() time.Duration {
	return parseDurationOr(c.Project.Watch.Debounce, defaultWatchDebounce)
}

// ServeAddr returns the webhook listen address.
func (c *Config) ServeAddr() string {
	if addr := strings.TrimSpace(c.Project.Watch.Serve); addr != "" {
		return addr
	}
	return defaultServeAddr
}

// TestCommand returns the shell command run inside each submission.
func (c *Config) TestCommand() string {
	if cmd := strings.TrimSpace(c.Project.Runner.Command); cmd != "" {
		return cmd
	}
	return defaultTestCommand
}

// RunnerImage returns the container image for sandboxed runs, empty for host.
func (c *Config) RunnerImage() string {
	return strings.TrimSpace(c.Project.Runner.Image)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Pipeline: PipelineSettings{
			Default: defaultPipelineFile,
		},
		Source: SourceSettings{
			Refresh: defaultRefreshWindow.String(),
		},
		Runner: RunnerSettings{
			Command: defaultTestCommand,
		},
		Gradebook: GradebookSettings{
			Path: defaultGradebookFile,
		},
		Watch: WatchSettings{
			Debounce: defaultWatchDebounce.String(),
			Serve:    defaultServeAddr,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Pipeline.Default) == "" {
		pc.Pipeline.Default = defaultPipelineFile
	}
	if strings.TrimSpace(pc.Runner.Command) == "" {
		pc.Runner.Command = defaultTestCommand
	}
	if strings.TrimSpace(pc.Gradebook.Path) == "" {
		pc.Gradebook.Path = defaultGradebookFile
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if err := checkDuration("source.refresh", pc.Source.Refresh); err != nil {
		return err
	}
	if err := checkDuration("watch.debounce", pc.Watch.Debounce); err != nil {
		return err
	}
	return nil
}

func checkDuration(key, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if _, err := time.ParseDuration(trimmed); err != nil {
		return fmt.Errorf("%s: %q is not a duration", key, trimmed)
	}
	return nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return fallback
	}
	return d
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
