package gradebook

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docenthq/docent/internal/pipeline"
	"github.com/docenthq/docent/internal/report"
)

func exportRows() []exportRow {
	return []exportRow{
		{ID: "s2", Name: "Bea", Email: "bea@x", Grades: map[string]float64{"hw1": 0.5, "hw2": 1}},
		{ID: "s1", Name: "Ada", Email: "ada@x", Grades: map[string]float64{"hw1": 1}},
	}
}

func TestBuildTableSortsByID(t *testing.T) {
	tbl, err := buildTable(exportRows(), []string{"hw1", "hw2"}, ExportOptions{})
	if err != nil {
		t.Fatalf("buildTable: %v", err)
	}
	rows := tbl.Rows()
	if rows[0].Index != "s1" || rows[1].Index != "s2" {
		t.Fatalf("order = %s, %s", rows[0].Index, rows[1].Index)
	}
	want := []string{"name", "email", "hw1", "hw2"}
	got := tbl.Columns()
	if len(got) != len(want) {
		t.Fatalf("columns = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns = %v, want %v", got, want)
		}
	}
}

func TestBuildTableSortsByAssignment(t *testing.T) {
	tbl, err := buildTable(exportRows(), []string{"hw1", "hw2"}, ExportOptions{Sort: "hw2"})
	if err != nil {
		t.Fatal(err)
	}
	rows := tbl.Rows()
	if rows[0].Index != "s1" {
		t.Fatalf("missing grades should sort first, got %s", rows[0].Index)
	}
}

func TestBuildTableRejectsUnknownSortColumn(t *testing.T) {
	_, err := buildTable(exportRows(), []string{"hw1", "hw2"}, ExportOptions{Sort: "final"})
	if !errors.Is(err, pipeline.ErrBadConfig) {
		t.Fatalf("err = %v, want ErrBadConfig", err)
	}
	if !strings.Contains(err.Error(), "hw1, hw2") {
		t.Fatalf("error should list the valid columns: %v", err)
	}
}

func TestBuildTableNormalizesAndSimplifies(t *testing.T) {
	tbl, err := buildTable(exportRows(), []string{"hw1", "hw2"}, ExportOptions{
		Normalize: 10,
		Simple:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	cols := tbl.Columns()
	if len(cols) != 2 || cols[0] != "hw1" {
		t.Fatalf("columns = %v", cols)
	}
	rows := tbl.Rows()
	if rows[1].Cells["hw2"] != 10.0 {
		t.Fatalf("hw2 = %v, want 10", rows[1].Cells["hw2"])
	}

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf, report.WriteOptions{FloatFormat: "%.2f"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "s2,5.00,10.00") {
		t.Fatalf("csv = %q", buf.String())
	}
}

func TestSaveTableValidatesGradeColumn(t *testing.T) {
	tbl := report.NewTable("school_id")
	tbl.AddRow("s1", map[string]any{"note": "missing grade"})

	g := &Gradebook{}
	err := g.SaveTable(context.Background(), "hw1", tbl, "")
	if !errors.Is(err, pipeline.ErrBadConfig) {
		t.Fatalf("err = %v, want ErrBadConfig", err)
	}
}
