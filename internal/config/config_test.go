package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	docentDir := filepath.Join(projectDir, ".docent")
	if err := os.MkdirAll(docentDir, 0755); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, DocentProjectDir: docentDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.RefreshWindow() != defaultRefreshWindow {
		t.Fatalf("expected default refresh window %s, got %s", defaultRefreshWindow, c.RefreshWindow())
	}
	if c.TestCommand() != defaultTestCommand {
		t.Fatalf("expected default test command %q, got %q", defaultTestCommand, c.TestCommand())
	}
	if got := c.DefaultPipelinePath(); got != filepath.Join(docentDir, "pipelines", defaultPipelineFile) {
		t.Fatalf("unexpected default pipeline path: %s", got)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	docentDir := filepath.Join(projectDir, ".docent")
	if err := os.MkdirAll(docentDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
github:
  token: file-token
pipeline:
  default: autograde.yaml
  fail_fast: true
source:
  refresh: 30m
runner:
  command: pytest -q --json-report
  image: python:3.12-slim
gradebook:
  path: grades/hw.db
watch:
  debounce: 2s
  serve: 0.0.0.0:9000
`)
	if err := os.WriteFile(filepath.Join(docentDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, DocentProjectDir: docentDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.RefreshWindow() != 30*time.Minute {
		t.Fatalf("expected 30m refresh, got %s", c.RefreshWindow())
	}
	if !c.Project.Pipeline.FailFast {
		t.Fatalf("expected fail_fast to parse")
	}
	if c.TestCommand() != "pytest -q --json-report" {
		t.Fatalf("wrong runner command: %q", c.TestCommand())
	}
	if c.RunnerImage() != "python:3.12-slim" {
		t.Fatalf("wrong runner image: %q", c.RunnerImage())
	}
	if got := c.GradebookPath(); got != filepath.Join(docentDir, "grades", "hw.db") {
		t.Fatalf("expected gradebook path inside .docent, got %s", got)
	}
	if c.ServeAddr() != "0.0.0.0:9000" {
		t.Fatalf("wrong serve addr: %s", c.ServeAddr())
	}
	if c.WatchDebounce() != 2*time.Second {
		t.Fatalf("wrong debounce: %s", c.WatchDebounce())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	docentDir := filepath.Join(projectDir, ".docent")
	if err := os.MkdirAll(docentDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
source:
  refresh: not-a-duration
`)
	if err := os.WriteFile(filepath.Join(docentDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, DocentProjectDir: docentDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestGithubTokenPrefersEnvironment(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	c := &Config{Project: defaultProjectConfig()}
	c.Project.Github.Token = "file-token"
	if got := c.GithubToken(); got != "env-token" {
		t.Fatalf("expected env token to win, got %q", got)
	}
	t.Setenv(TokenEnv, "")
	if got := c.GithubToken(); got != "file-token" {
		t.Fatalf("expected file token fallback, got %q", got)
	}
}

func TestInitDirCreatesLayout(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir returned error: %v", err)
	}
	for _, sub := range []string{"data", "logs", "pipelines", "plugins", "reference"} {
		if _, err := os.Stat(filepath.Join(projectDir, DocentDir, sub)); err != nil {
			t.Fatalf("expected %s to exist: %v", sub, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(projectDir, DocentDir, "config.yaml"))
	if err != nil {
		t.Fatalf("expected default config file: %v", err)
	}
	if !strings.Contains(string(data), "version: 1") {
		t.Fatalf("default config missing version header")
	}
}
