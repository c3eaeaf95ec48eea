// cmd/docent/board.go

package main

import (
	"github.com/docenthq/docent/internal/tui"
)

func cmdBoard(args []string) error {
	fs := newFlagSet("board", "docent board [-f FILE]")
	file := fs.String("f", "", "pipeline file (default: pick from the pipelines directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	projectDir, err := project()
	if err != nil {
		return err
	}
	var opts []tui.AppOption
	if *file != "" {
		opts = append(opts, tui.WithPipelineFile(*file))
	}
	return tui.Run(projectDir, opts...)
}
