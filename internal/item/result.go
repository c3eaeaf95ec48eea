package item

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the payload carried by a Result.
type Kind string

const (
	KindScore  Kind = "score"
	KindText   Kind = "text"
	KindFiles  Kind = "files"
	KindReport Kind = "report"
	KindTags   Kind = "tags"
	KindData   Kind = "data"
)

// TestCase is one test outcome inside a report.
type TestCase struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// TestReport summarizes a test-suite run for one submission.
type TestReport struct {
	Passed int        `json:"passed"`
	Failed int        `json:"failed"`
	Total  int        `json:"total"`
	Cases  []TestCase `json:"cases,omitempty"`
}

// Result is one recorded step outcome. Exactly one payload field matching
// Kind is meaningful; the zero Result is invalid.
//
// Documents keep results readable: scores and text serialize as bare JSON
// scalars, data results as plain objects, and the remaining kinds as objects
// tagged with a "type" field. The "type" key is reserved inside data results.
type Result struct {
	Kind   Kind
	Score  float64
	Text   string
	Files  []string
	Report *TestReport
	Tags   map[string]bool
	Data   map[string]any
}

// ScoreResult records a numeric grade.
func ScoreResult(v float64) Result {
	return Result{Kind: KindScore, Score: v}
}

// TextResult records a single string, e.g. a school id.
func TextResult(s string) Result {
	return Result{Kind: KindText, Text: s}
}

// FilesResult records the files a step placed into the submission.
func FilesResult(paths []string) Result {
	return Result{Kind: KindFiles, Files: paths}
}

// ReportResult records a test-suite summary.
func ReportResult(r TestReport) Result {
	return Result{Kind: KindReport, Report: &r}
}

// TagsResult records a set of awarded competency tags.
func TagsResult(tags map[string]bool) Result {
	return Result{Kind: KindTags, Tags: tags}
}

// DataResult records free-form fields, e.g. pull-request metadata.
func DataResult(fields map[string]any) Result {
	return Result{Kind: KindData, Data: fields}
}

// Value returns the natural Go value of the payload.
func (r Result) Value() any {
	switch r.Kind {
	case KindScore:
		return r.Score
	case KindText:
		return r.Text
	case KindFiles:
		return r.Files
	case KindReport:
		return r.Report
	case KindTags:
		return r.Tags
	case KindData:
		return r.Data
	default:
		return nil
	}
}

// Spread flattens mapping-shaped results into report columns. Scalar kinds
// report ok=false and land under the collect column name instead.
func (r Result) Spread() (map[string]any, bool) {
	switch r.Kind {
	case KindData:
		out := make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			out[k] = v
		}
		return out, true
	case KindTags:
		out := make(map[string]any, len(r.Tags))
		for tag, on := range r.Tags {
			out[tag] = on
		}
		return out, true
	case KindReport:
		if r.Report == nil {
			return nil, false
		}
		return map[string]any{
			"passed": r.Report.Passed,
			"failed": r.Report.Failed,
			"total":  r.Report.Total,
		}, true
	default:
		return nil, false
	}
}

// TagList returns the awarded tags in sorted order.
func (r Result) TagList() []string {
	if r.Kind != KindTags {
		return nil
	}
	out := make([]string, 0, len(r.Tags))
	for tag, on := range r.Tags {
		if on {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the payload in document form.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindScore:
		return json.Marshal(r.Score)
	case KindText:
		return json.Marshal(r.Text)
	case KindFiles:
		return json.Marshal(struct {
			Type  Kind     `json:"type"`
			Files []string `json:"files"`
		}{KindFiles, r.Files})
	case KindReport:
		if r.Report == nil {
			return nil, fmt.Errorf("item: report result missing payload")
		}
		return json.Marshal(struct {
			Type Kind `json:"type"`
			*TestReport
		}{KindReport, r.Report})
	case KindTags:
		return json.Marshal(struct {
			Type Kind            `json:"type"`
			Tags map[string]bool `json:"tags"`
		}{KindTags, r.Tags})
	case KindData:
		doc := make(map[string]any, len(r.Data))
		for k, v := range r.Data {
			if k == "type" {
				return nil, fmt.Errorf("item: data result uses reserved key %q", k)
			}
			doc[k] = v
		}
		return json.Marshal(doc)
	default:
		return nil, fmt.Errorf("item: cannot encode result kind %q", r.Kind)
	}
}

// UnmarshalJSON decodes any value a document may hold for a step.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*r = ScoreResult(v)
		return nil
	case string:
		*r = TextResult(v)
		return nil
	case map[string]any:
		return r.decodeObject(data, v)
	default:
		return fmt.Errorf("item: unsupported result value %T", raw)
	}
}

func (r *Result) decodeObject(data []byte, obj map[string]any) error {
	kind, _ := obj["type"].(string)
	switch Kind(kind) {
	case KindFiles:
		var payload struct {
			Files []string `json:"files"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		*r = FilesResult(payload.Files)
	case KindReport:
		var payload TestReport
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		*r = ReportResult(payload)
	case KindTags:
		var payload struct {
			Tags map[string]bool `json:"tags"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return err
		}
		*r = TagsResult(payload.Tags)
	default:
		delete(obj, "type")
		*r = DataResult(obj)
	}
	return nil
}
