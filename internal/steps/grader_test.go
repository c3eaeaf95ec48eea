package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/pipeline"
)

func itemWithReport(passed, failed int) *item.Item {
	it := item.New("ada", "")
	it.SetStep("pytest", item.ReportResult(item.TestReport{
		Passed: passed,
		Failed: failed,
		Total:  passed + failed,
	}))
	return it
}

func TestGraderPassRatio(t *testing.T) {
	g := NewGrader("pytest")

	res, err := g.Process(context.Background(), itemWithReport(3, 1))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Kind != item.KindScore || res.Score != 0.75 {
		t.Fatalf("result = %+v", res)
	}
}

func TestGraderMissingStep(t *testing.T) {
	g := NewGrader("pytest")

	_, err := g.Process(context.Background(), item.New("ada", ""))
	if !errors.Is(err, pipeline.ErrMissingDependency) {
		t.Fatalf("err = %v, want ErrMissingDependency", err)
	}
}

func TestGraderEmptyReport(t *testing.T) {
	g := NewGrader("pytest")

	if _, err := g.Process(context.Background(), itemWithReport(0, 0)); err == nil {
		t.Fatalf("expected an error for a report without cases")
	}
}

func TestGraderCustomReducer(t *testing.T) {
	g := NewGrader("review", WithReducer(func(r item.Result) (float64, error) {
		return float64(len(r.TagList())) / 4, nil
	}))
	it := item.New("ada", "")
	it.SetStep("review", item.TagsResult(map[string]bool{"style": true, "docs": true}))

	res, err := g.Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 0.5 {
		t.Fatalf("score = %v", res.Score)
	}
}

func TestCompetenciesExtractsTags(t *testing.T) {
	c := NewCompetencies("review")
	it := item.New("ada", "")
	it.SetStep("review", item.DataResult(map[string]any{
		"grade": []any{"loops", "recursion"},
	}))

	res, err := c.Process(context.Background(), it)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Kind != item.KindTags || !res.Tags["loops"] || !res.Tags["recursion"] {
		t.Fatalf("result = %+v", res)
	}
}

func TestCompetenciesCustomField(t *testing.T) {
	c := NewCompetencies("review", WithField("earned"))
	it := item.New("ada", "")
	it.SetStep("review", item.DataResult(map[string]any{
		"earned": []string{"testing"},
	}))

	res, err := c.Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Tags["testing"] {
		t.Fatalf("tags = %v", res.Tags)
	}
}

func TestCompetenciesMissingPieces(t *testing.T) {
	c := NewCompetencies("review")

	_, err := c.Process(context.Background(), item.New("ada", ""))
	if !errors.Is(err, pipeline.ErrMissingDependency) {
		t.Fatalf("missing step: err = %v", err)
	}

	it := item.New("ada", "")
	it.SetStep("review", item.DataResult(map[string]any{"note": "ok"}))
	_, err = c.Process(context.Background(), it)
	if !errors.Is(err, pipeline.ErrMissingDependency) {
		t.Fatalf("missing field: err = %v", err)
	}

	it.SetStep("review", item.DataResult(map[string]any{"grade": "not a list"}))
	_, err = c.Process(context.Background(), it)
	if !errors.Is(err, pipeline.ErrBadConfig) {
		t.Fatalf("bad shape: err = %v", err)
	}
}
