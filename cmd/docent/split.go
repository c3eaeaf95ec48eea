// cmd/docent/split.go

package main

import (
	"fmt"
	"os"

	"github.com/docenthq/docent/internal/config"
	"github.com/docenthq/docent/internal/problemset"
)

func cmdSplit(args []string) error {
	fs := newFlagSet("split", "docent split CSV [-o DIR]")
	out := fs.String("o", "", "destination directory (default: the project reference directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("split needs exactly one CSV file")
	}
	root := *out
	if root == "" {
		projectDir, err := project()
		if err != nil {
			return err
		}
		cfg, err := config.NewConfig(projectDir)
		if err != nil {
			return err
		}
		root = cfg.ReferenceDir()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	db, err := problemset.NewExtractor().Extract(f)
	if err != nil {
		return err
	}
	if err := problemset.Save(root, db); err != nil {
		return err
	}

	students := map[string]bool{}
	for _, subs := range db {
		for student := range subs {
			students[student] = true
		}
	}
	fmt.Printf("split %d question(s) from %d student(s) into %s\n", len(db.Questions()), len(students), root)
	return nil
}
