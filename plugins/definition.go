package plugins

import (
	"fmt"
	"strings"
)

// PipelineDefinition describes one grading pipeline loaded from a file
// under .docent/pipelines.
//
// The struct mirrors the on-disk schema and is intentionally narrow so the
// CLI can validate a definition before constructing sources and steps
// from it.
type PipelineDefinition struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Source      SourceDefinition `json:"source" yaml:"source"`
	Steps       []StepDefinition `json:"steps" yaml:"steps"`
}

// SourceDefinition selects where submissions come from.
type SourceDefinition struct {
	Type    string         `json:"type" yaml:"type"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// StepDefinition declares one step in execution order. A missing name
// defaults to the step type.
type StepDefinition struct {
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type    string         `json:"type" yaml:"type"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def PipelineDefinition) Normalized() PipelineDefinition {
	clone := PipelineDefinition{
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(def.Description),
		Source:      def.Source.normalized(),
	}
	if len(def.Steps) > 0 {
		clone.Steps = make([]StepDefinition, len(def.Steps))
		for i, step := range def.Steps {
			clone.Steps[i] = step.normalized()
		}
	}
	return clone
}

// Validate ensures the definition is well-formed: named, sourced, and with
// uniquely named steps. Whether the source and step types exist is the
// builder's concern, since plugins can add kinds after parse time.
func (def PipelineDefinition) Validate() error {
	normalized := def.Normalized()
	if normalized.Name == "" {
		return fmt.Errorf("plugin: pipeline name is required")
	}
	if normalized.Source.Type == "" {
		return fmt.Errorf("plugin: pipeline %s: source type is required", normalized.Name)
	}
	if len(normalized.Steps) == 0 {
		return fmt.Errorf("plugin: pipeline %s: at least one step is required", normalized.Name)
	}
	seen := make(map[string]struct{}, len(normalized.Steps))
	for idx, step := range normalized.Steps {
		if step.Type == "" {
			return fmt.Errorf("plugin: pipeline %s: steps[%d]: type is required", normalized.Name, idx)
		}
		if _, exists := seen[step.Name]; exists {
			return fmt.Errorf("plugin: pipeline %s: steps[%d]: duplicate step name %s", normalized.Name, idx, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

func (def SourceDefinition) normalized() SourceDefinition {
	return SourceDefinition{
		Type:    strings.TrimSpace(strings.ToLower(def.Type)),
		Options: normalizedOptions(def.Options),
	}
}

func (def StepDefinition) normalized() StepDefinition {
	clone := StepDefinition{
		Name:    strings.TrimSpace(def.Name),
		Type:    strings.TrimSpace(strings.ToLower(def.Type)),
		Options: normalizedOptions(def.Options),
	}
	if clone.Name == "" {
		clone.Name = clone.Type
	}
	return clone
}

func normalizedOptions(options map[string]any) map[string]any {
	if len(options) == 0 {
		return nil
	}
	clone := make(map[string]any, len(options))
	for key, value := range options {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		clone[trimmed] = value
	}
	return clone
}
