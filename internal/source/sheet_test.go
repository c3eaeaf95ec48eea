package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/pipeline"
)

func writeSheet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "responses.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSheetCollectDedupesKeepingNewest(t *testing.T) {
	sheet := writeSheet(t, strings.Join([]string{
		"Timestamp,user.id,file,lang",
		"2026-03-01 10:00:00,s1,old answer,py",
		"2026-03-02 10:00:00,s1,new answer,py",
		"2026-03-01 12:00:00,s2,other answer,go",
	}, "\n"))
	dest := t.TempDir()
	book, err := logbook.New(filepath.Join(dest, "runs.log"))
	if err != nil {
		t.Fatal(err)
	}
	src := NewSheet(sheet, dest, WithSheetLogbook(book))

	entries, err := src.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "s1" || entries[1].Key != "s2" {
		t.Fatalf("entries = %+v", entries)
	}

	data, err := os.ReadFile(filepath.Join(dest, "s1", "data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new answer" {
		t.Fatalf("duplicate row won over the newer one: %q", data)
	}

	it := entries[0].Item
	if got, _ := it.FieldString("user.id"); got != "s1" {
		t.Fatalf("user.id = %q", got)
	}
	if got, _ := it.FieldString("created"); got != "2026-03-02T10:00:00Z" {
		t.Fatalf("created = %q", got)
	}
	if _, ok := it.Field("file"); ok {
		t.Fatalf("file column leaked into the document")
	}

	warned := false
	for _, line := range book.Tail(10) {
		if strings.Contains(line, "repeated submission: s1") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a repeated-submission warning")
	}
}

func TestSheetMaterializesURLCells(t *testing.T) {
	sheet := writeSheet(t, strings.Join([]string{
		"Timestamp,user.id,file",
		"2026-03-01 10:00:00,ada lovelace,https://github.com/ada/hw1",
		"2026-03-01 11:00:00,bob,https://files.example.edu/bob.py",
		"2026-03-01 12:00:00,cleo,print('hi')",
	}, "\n"))
	dest := t.TempDir()

	var fetched []string
	fetcher := func(ctx context.Context, url string) ([]byte, error) {
		fetched = append(fetched, url)
		return []byte("fetched " + url), nil
	}
	src := NewSheet(sheet, dest, WithFetcher(fetcher))

	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"https://files.example.edu/bob.py",
		"https://raw.githubusercontent.com/ada/hw1/master/data.txt",
	}
	if len(fetched) != len(want) || fetched[0] != want[0] || fetched[1] != want[1] {
		t.Fatalf("fetched = %v, want %v", fetched, want)
	}

	literal, err := os.ReadFile(filepath.Join(dest, "cleo", "data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(literal) != "print('hi')" {
		t.Fatalf("literal cell = %q", literal)
	}
	if _, err := os.Stat(filepath.Join(dest, "ada_lovelace", "data.txt")); err != nil {
		t.Fatalf("sanitized key directory missing: %v", err)
	}
}

func TestSheetKeepsExistingWork(t *testing.T) {
	sheet := writeSheet(t, strings.Join([]string{
		"Timestamp,user.id,file",
		"2026-03-01 10:00:00,s1,original",
	}, "\n"))
	dest := t.TempDir()
	src := NewSheet(sheet, dest)

	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := src.UpdateSteps("s1", map[string]item.Result{
		"grade": item.ScoreResult(0.5),
	}); err != nil {
		t.Fatal(err)
	}
	edited := filepath.Join(dest, "s1", "data.txt")
	if err := os.WriteFile(edited, []byte("edited by grader"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := src.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !entries[0].Item.HasStep("grade") {
		t.Fatalf("recollect dropped recorded results")
	}
	data, _ := os.ReadFile(edited)
	if string(data) != "edited by grader" {
		t.Fatalf("recollect overwrote an existing file: %q", data)
	}
}

func TestSheetRejectsRowsWithoutID(t *testing.T) {
	sheet := writeSheet(t, strings.Join([]string{
		"Timestamp,name,file",
		"2026-03-01 10:00:00,anonymous,answer",
	}, "\n"))
	src := NewSheet(sheet, t.TempDir())

	_, err := src.Collect(context.Background())
	if !errors.Is(err, pipeline.ErrBadConfig) {
		t.Fatalf("err = %v, want ErrBadConfig", err)
	}
}

func TestSheetRejectsUnparseableTimestamp(t *testing.T) {
	sheet := writeSheet(t, strings.Join([]string{
		"Timestamp,user.id,file",
		"next tuesday,s1,answer",
	}, "\n"))
	src := NewSheet(sheet, t.TempDir())

	_, err := src.Collect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "field created") {
		t.Fatalf("err = %v, want a created-field parse error", err)
	}
}
