// Package clone checks out every repository listed in a spreadsheet
// export. Column names follow classroom-sheet conventions; unmatched
// columns fall back in a fixed order.
package clone

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Column fallbacks, tried in order when no explicit name is given.
var (
	repoColumns   = []string{"Repo", "repo", "Git", "git", "Url", "url"}
	branchColumns = []string{"Branch", "branch"}
	pathColumns   = []string{"Path", "path", "Name", "name", "Id", "ID", "id"}
)

// Repo is one repository to check out.
type Repo struct {
	URL    string
	Path   string
	Branch string
	Depth  int
}

// Command returns the git invocation for this repo.
func (r Repo) Command() []string {
	cmd := []string{"git", "clone", r.URL}
	if r.Path != "" {
		cmd = append(cmd, r.Path)
	}
	if r.Depth > 0 {
		cmd = append(cmd, "--depth", strconv.Itoa(r.Depth))
	}
	if r.Branch != "" {
		cmd = append(cmd, "--branch", r.Branch)
	}
	return cmd
}

// Options select spreadsheet columns and clone behavior.
type Options struct {
	// RepoColumn names the URL column explicitly.
	RepoColumn string
	// PathColumn names the checkout-directory column explicitly.
	PathColumn string
	// BranchColumn names the branch column explicitly.
	BranchColumn string
	// DefaultBranch fills rows without a branch value. Empty lets git
	// pick the remote's default branch.
	DefaultBranch string
	// Depth applies a shallow-clone depth to every row when positive.
	Depth int
}

// ReadCSV loads the repositories listed in a CSV export.
func ReadCSV(path string, opts Options) ([]Repo, error) {
	if ext := filepath.Ext(path); ext != ".csv" {
		return nil, fmt.Errorf("clone: %s is not a csv file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("clone: read %s: %w", path, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("clone: %s has no header row", path)
	}
	header := records[0]

	urlIdx, err := pickColumn(header, opts.RepoColumn, repoColumns)
	if err != nil {
		return nil, fmt.Errorf("clone: %s: %w", path, err)
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("clone: no repository column in %s (tried %s)",
			path, strings.Join(repoColumns, ", "))
	}
	branchIdx, err := pickColumn(header, opts.BranchColumn, branchColumns)
	if err != nil {
		return nil, fmt.Errorf("clone: %s: %w", path, err)
	}
	pathIdx, err := pickColumn(header, opts.PathColumn, pathColumns)
	if err != nil {
		return nil, fmt.Errorf("clone: %s: %w", path, err)
	}

	var repos []Repo
	for _, rec := range records[1:] {
		url := strings.TrimSpace(rec[urlIdx])
		if url == "" {
			continue
		}
		r := Repo{URL: url, Depth: opts.Depth}
		if pathIdx >= 0 {
			r.Path = strings.TrimSpace(rec[pathIdx])
		}
		if r.Path == "" {
			r.Path = DirName(url)
		}
		if branchIdx >= 0 {
			r.Branch = strings.TrimSpace(rec[branchIdx])
		}
		if r.Branch == "" {
			r.Branch = opts.DefaultBranch
		}
		repos = append(repos, r)
	}
	return repos, nil
}

// pickColumn resolves a header index. An explicit name must exist;
// fallbacks may all miss, reported as -1.
func pickColumn(header []string, explicit string, fallbacks []string) (int, error) {
	if explicit != "" {
		if idx := indexOf(header, explicit); idx >= 0 {
			return idx, nil
		}
		return -1, fmt.Errorf("column %s not found", explicit)
	}
	for _, name := range fallbacks {
		if idx := indexOf(header, name); idx >= 0 {
			return idx, nil
		}
	}
	return -1, nil
}

func indexOf(header []string, want string) int {
	for i, name := range header {
		if strings.TrimSpace(name) == want {
			return i
		}
	}
	return -1
}

// DirName derives a checkout directory from a git URL, joining the last
// two path segments the way classroom exports name forks.
func DirName(url string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "__")
}

// RunFunc executes one git invocation. Tests substitute it.
type RunFunc func(args []string) error

// Status reports what a CloneAll pass did.
type Status struct {
	Cloned  []string
	Skipped []string
}

// CloneAll checks out every repo, skipping paths that already exist on
// disk. The first git failure aborts the pass.
func CloneAll(repos []Repo, run RunFunc) (Status, error) {
	if run == nil {
		run = execGit
	}
	var st Status
	for _, r := range repos {
		if r.Path != "" {
			if _, err := os.Stat(r.Path); err == nil {
				st.Skipped = append(st.Skipped, r.Path)
				continue
			}
		}
		if err := run(r.Command()); err != nil {
			return st, fmt.Errorf("clone: %s: %w", r.URL, err)
		}
		st.Cloned = append(st.Cloned, r.Path)
	}
	return st, nil
}

func execGit(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
