// cmd/docent/main.go
//
// Entry point for the docent CLI. Every subcommand works against the
// .docent state directory of the current project: init creates it, run
// and watch execute grading pipelines, collect and export build grade
// tables, board opens the TUI, clone/split/calendar cover the
// surrounding course chores.

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docenthq/docent/internal/config"
	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/pipeline"
	"github.com/docenthq/docent/internal/steps"
	"github.com/docenthq/docent/plugins"
)

const usageText = `docent - grade student submissions in pipelines

Usage:
  docent init                          create the .docent project layout
  docent run      [-f FILE] [flags]    execute pending grading steps
  docent collect  [-f FILE] [flags]    build a grade table from results
  docent export   [flags]              export the gradebook as CSV
  docent watch    [-f FILE] [flags]    re-run grading when files change
  docent board    [-f FILE]            open the interactive board
  docent clone    CSV [flags]          clone repositories listed in a CSV
  docent split    CSV [flags]          split a sheet into per-question dirs
  docent calendar FILE [flags]         expand a course calendar

Run "docent <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "init":
		err = cmdInit(args)
	case "run":
		err = cmdRun(args)
	case "collect":
		err = cmdCollect(args)
	case "export":
		err = cmdExport(args)
	case "watch":
		err = cmdWatch(args)
	case "board":
		err = cmdBoard(args)
	case "clone":
		err = cmdClone(args)
	case "split":
		err = cmdSplit(args)
	case "calendar":
		err = cmdCalendar(args)
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "docent: unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}
	if err != nil {
		die("docent: %v", err)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// newFlagSet builds a flag set that prints its own usage line.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// project locates the directory every command grades from.
func project() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Abs(cwd)
}

// session bundles what every grading command needs.
type session struct {
	cfg  *config.Config
	book *logbook.Logbook
	pipe *pipeline.Pipeline
	def  plugins.PipelineDefinition
}

// openSession loads the project, registers plugins, and builds the
// pipeline declared in file. An empty file means the default pipeline;
// failFast overrides the configured policy when non-nil.
func openSession(file string, failFast *bool) (*session, error) {
	projectDir, err := project()
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	book, err := logbook.ForProject(projectDir)
	if err != nil {
		return nil, err
	}
	if failFast != nil {
		cfg.Project.Pipeline.FailFast = *failFast
	}
	reg := steps.DefaultRegistry(book)
	if err := plugins.LoadHelperDir(cfg.PluginsDir(), reg); err != nil {
		return nil, err
	}
	if file == "" {
		file = cfg.DefaultPipelinePath()
	}
	files, err := plugins.Load(file)
	if err != nil {
		return nil, err
	}
	found, err := plugins.Find(files, "")
	if err != nil {
		return nil, err
	}
	def := found.Definition.Normalized()
	pipe, err := plugins.Build(def, plugins.BuildOptions{
		Registry: reg,
		Config:   cfg,
		Book:     book,
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, book: book, pipe: pipe, def: def}, nil
}

func cmdInit(args []string) error {
	fs := newFlagSet("init", "docent init")
	if err := fs.Parse(args); err != nil {
		return err
	}
	projectDir, err := project()
	if err != nil {
		return err
	}
	if err := config.InitDir(projectDir); err != nil {
		return err
	}
	fmt.Printf("initialized %s\n", filepath.Join(projectDir, config.DocentDir))
	fmt.Printf("drop pipeline definitions into %s\n", filepath.Join(projectDir, config.DocentDir, "pipelines"))
	return nil
}
