// cmd/docent/run.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/docenthq/docent/internal/store"
)

func cmdRun(args []string) error {
	fs := newFlagSet("run", "docent run [-f FILE] [--fail-fast] [--dry-run]")
	file := fs.String("f", "", "pipeline definition file (default .docent/pipelines/default.yaml)")
	failFast := fs.Bool("fail-fast", false, "stop the whole run on the first step failure")
	dryRun := fs.Bool("dry-run", false, "print the execution plan without grading")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var override *bool
	if *failFast {
		override = failFast
	}
	s, err := openSession(*file, override)
	if err != nil {
		return err
	}

	if *dryRun {
		return printPlan(s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := s.pipe.ExecutePending(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("recorded %d result(s), skipped %d already graded\n", report.Executed, report.Skipped)
	for _, f := range report.Failures {
		fmt.Printf("  ✗ %s · %s [%s]: %s\n", f.Key, f.Step, f.Kind, f.Message)
	}
	if n := len(report.Failures); n > 0 {
		fmt.Printf("%d submission(s) quarantined; fix and re-run\n", n)
	}
	return nil
}

func printPlan(s *session) error {
	fmt.Printf("pipeline: %s\n", s.def.Name)
	fmt.Printf("source:   %s\n", s.def.Source.Type)
	for i, name := range s.pipe.Steps() {
		fmt.Printf("  %d. %s\n", i+1, name)
	}
	keys, err := store.New(s.cfg.DataDir()).Keys()
	if err != nil {
		return err
	}
	fmt.Printf("%d document(s) on disk\n", len(keys))
	return nil
}
