// cmd/docent/collect.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/docenthq/docent/internal/gradebook"
	"github.com/docenthq/docent/internal/pipeline"
	"github.com/docenthq/docent/internal/report"
)

func cmdCollect(args []string) error {
	fs := newFlagSet("collect",
		"docent collect [-f FILE] --index STEP --data STEP [--col NAME] [--fill V] [-o CSV] [--db PATH --assignment NAME]")
	file := fs.String("f", "", "pipeline definition file (default .docent/pipelines/default.yaml)")
	index := fs.String("index", "", "step whose result keys each row")
	data := fs.String("data", "", "step whose result fills the row")
	column := fs.String("col", "", "column name for scalar results (default grade)")
	fill := fs.String("fill", "", "value for cells a row is missing")
	out := fs.String("o", "", "write the table to this CSV file instead of stdout")
	dbPath := fs.String("db", "", "also record grades into this gradebook")
	assignment := fs.String("assignment", "", "assignment name for --db")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(*file, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := pipeline.CollectOptions{
		Index:  *index,
		Data:   *data,
		Column: *column,
		SaveTo: *out,
	}
	if *fill != "" {
		opts.Fill = *fill
	}
	tbl, err := s.pipe.Collect(ctx, opts)
	if err != nil {
		return err
	}
	if *out == "" {
		if err := tbl.WriteCSV(os.Stdout, report.WriteOptions{Fill: opts.Fill}); err != nil {
			return err
		}
	} else {
		fmt.Printf("wrote %d row(s) to %s\n", tbl.Len(), *out)
	}

	if *dbPath == "" {
		return nil
	}
	if *assignment == "" {
		return fmt.Errorf("--db needs --assignment to name the grade column")
	}
	book, err := gradebook.Open(*dbPath)
	if err != nil {
		return err
	}
	defer book.Close()
	gradeColumn := *column
	if gradeColumn == "" {
		gradeColumn = "grade"
	}
	if err := book.SaveTable(ctx, *assignment, tbl, gradeColumn); err != nil {
		return err
	}
	fmt.Printf("recorded %q for %d student(s) in %s\n", *assignment, tbl.Len(), *dbPath)
	return nil
}
