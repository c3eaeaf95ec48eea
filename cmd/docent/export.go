// cmd/docent/export.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/docenthq/docent/internal/config"
	"github.com/docenthq/docent/internal/gradebook"
	"github.com/docenthq/docent/internal/report"
)

func cmdExport(args []string) error {
	fs := newFlagSet("export",
		"docent export [--db PATH] [-o CSV] [--sort COL] [--normalize MAX] [--simple]")
	dbPath := fs.String("db", "", "gradebook file (default .docent/gradebook.db)")
	out := fs.String("o", "", "write the export to this CSV file instead of stdout")
	sortBy := fs.String("sort", "", "sort rows by id or by a grade column (default id)")
	normalize := fs.Float64("normalize", 0, "multiply grades, e.g. 10 turns 0..1 ratios into 0..10")
	simple := fs.Bool("simple", false, "drop the name and email columns")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *dbPath
	if path == "" {
		projectDir, err := project()
		if err != nil {
			return err
		}
		cfg, err := config.NewConfig(projectDir)
		if err != nil {
			return err
		}
		path = cfg.GradebookPath()
	}

	book, err := gradebook.Open(path)
	if err != nil {
		return err
	}
	defer book.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tbl, err := book.Export(ctx, gradebook.ExportOptions{
		Sort:      *sortBy,
		Normalize: *normalize,
		Simple:    *simple,
	})
	if err != nil {
		return err
	}
	opts := report.WriteOptions{FloatFormat: "%.2f"}
	if *out != "" {
		if err := tbl.SaveCSV(*out, opts); err != nil {
			return err
		}
		fmt.Printf("wrote %d student(s) to %s\n", tbl.Len(), *out)
		return nil
	}
	return tbl.WriteCSV(os.Stdout, opts)
}
