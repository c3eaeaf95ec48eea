package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDefinition = `name: grade-homework
description: Grade the homework sheet
source:
  type: csv_sheet
  options:
    path: submissions.csv
steps:
  - type: pytest
  - name: final
    type: grader
    options:
      step: pytest
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "grade-homework" || def.Source.Type != "csv_sheet" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if len(def.Steps) != 2 || def.Steps[0].Name != "pytest" || def.Steps[1].Name != "final" {
		t.Fatalf("unexpected steps: %+v", def.Steps)
	}
	if def.Source.Options["path"] != "submissions.csv" {
		t.Fatalf("unexpected source options: %+v", def.Source.Options)
	}
}

func TestParseDefinitionYAMLErrors(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("")); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
	if _, err := ParseDefinitionYAML([]byte("name: lonely\n")); err == nil {
		t.Fatalf("expected sourceless definition to fail validation")
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "default.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Path != path {
		t.Fatalf("expected path %s, got %s", path, defs[0].Path)
	}
	if defs[0].Definition.Name != "grade-homework" {
		t.Fatalf("unexpected name: %+v", defs[0].Definition)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil slice for missing dir, got %v", defs)
	}
}
