// cmd/docent/clone.go

package main

import (
	"fmt"

	"github.com/docenthq/docent/internal/clone"
)

func cmdClone(args []string) error {
	fs := newFlagSet("clone", "docent clone CSV [flags]")
	repoCol := fs.String("repo", "", "column holding repository URLs (default: autodetect)")
	pathCol := fs.String("path", "", "column holding checkout directories (default: autodetect)")
	branchCol := fs.String("branch", "", "column holding branch names (default: autodetect)")
	defBranch := fs.String("default-branch", "", "branch for rows without one (default: the remote default)")
	depth := fs.Int("depth", 0, "shallow-clone depth, 0 clones full history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("clone needs exactly one CSV file")
	}
	repos, err := clone.ReadCSV(fs.Arg(0), clone.Options{
		RepoColumn:    *repoCol,
		PathColumn:    *pathCol,
		BranchColumn:  *branchCol,
		DefaultBranch: *defBranch,
		Depth:         *depth,
	})
	if err != nil {
		return err
	}
	st, err := clone.CloneAll(repos, nil)
	for _, p := range st.Skipped {
		fmt.Printf("skipped %s, already on disk\n", p)
	}
	if err != nil {
		return err
	}
	fmt.Printf("cloned %d of %d repositories\n", len(st.Cloned), len(repos))
	return nil
}
