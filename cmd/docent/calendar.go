// cmd/docent/calendar.go

package main

import (
	"fmt"
	"os"

	"github.com/docenthq/docent/internal/calendar"
)

func cmdCalendar(args []string) error {
	fs := newFlagSet("calendar", "docent calendar FILE [-o OUT] [--info]")
	out := fs.String("o", "", "write the expanded calendar here instead of stdout")
	info := fs.Bool("info", false, "print a summary instead of the expanded calendar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("calendar needs exactly one source file")
	}
	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cal, err := calendar.Parse(string(src))
	if err != nil {
		return err
	}
	if *info {
		fmt.Println(cal.Describe())
		return nil
	}
	rendered := cal.Render()
	if *out == "" {
		fmt.Print(rendered)
		return nil
	}
	if err := os.WriteFile(*out, []byte(rendered), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
