package plugins

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Discover loads every pipeline definition under dir, YAML and Go alike.
// Pipeline names must be unique across the directory.
func Discover(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	defs := append(yamlDefs, goDefs...)

	seen := make(map[string]string, len(defs))
	for _, file := range defs {
		name := file.Definition.Name
		if existing, ok := seen[name]; ok {
			return nil, fmt.Errorf("plugin: duplicate pipeline %s (%s and %s)", name, existing, file.Path)
		}
		seen[name] = file.Path
	}
	return defs, nil
}

// Load reads the definitions in a single file, dispatching on extension.
// YAML files hold one pipeline; Go files evaluate in the interpreter and
// may declare several.
func Load(path string) ([]DefinitionFile, error) {
	if filepath.Ext(path) == ".go" {
		return loadGoDefinitionFile(path)
	}
	file, err := LoadDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	return []DefinitionFile{file}, nil
}

// Find returns the definition called name. An empty name picks the sole
// definition when there is exactly one.
func Find(files []DefinitionFile, name string) (DefinitionFile, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		if len(files) == 1 {
			return files[0], nil
		}
		if len(files) == 0 {
			return DefinitionFile{}, fmt.Errorf("plugin: no pipelines defined")
		}
		return DefinitionFile{}, fmt.Errorf("plugin: %d pipelines defined, name one of %s",
			len(files), strings.Join(definitionNames(files), ", "))
	}
	for _, file := range files {
		if file.Definition.Name == trimmed {
			return file, nil
		}
	}
	return DefinitionFile{}, fmt.Errorf("plugin: pipeline %s not found", trimmed)
}

func definitionNames(files []DefinitionFile) []string {
	names := make([]string, len(files))
	for i, file := range files {
		names[i] = file.Definition.Name
	}
	sort.Strings(names)
	return names
}
