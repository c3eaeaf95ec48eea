package clone

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sheetCSV = `Name,Url,Branch
alice,https://github.com/school/hw-alice,main
bob,https://github.com/school/hw-bob,
,https://github.com/school/hw-orphan,
`

func writeSheet(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repos.csv")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReadCSVColumnFallbacks(t *testing.T) {
	path := writeSheet(t, sheetCSV)
	repos, err := ReadCSV(path, Options{DefaultBranch: "master"})
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("expected 3 repos, got %d", len(repos))
	}
	if repos[0].Path != "alice" || repos[0].Branch != "main" {
		t.Fatalf("first repo = %+v", repos[0])
	}
	if repos[1].Branch != "master" {
		t.Fatalf("empty branch must take the default, got %q", repos[1].Branch)
	}
	if repos[2].Path != "school__hw-orphan" {
		t.Fatalf("missing path must derive from the url, got %q", repos[2].Path)
	}
}

func TestReadCSVExplicitColumns(t *testing.T) {
	path := writeSheet(t, "student,repository\nalice,https://github.com/school/hw-alice\n")
	repos, err := ReadCSV(path, Options{RepoColumn: "repository", PathColumn: "student"})
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(repos) != 1 || repos[0].Path != "alice" {
		t.Fatalf("repos = %+v", repos)
	}

	if _, err := ReadCSV(path, Options{RepoColumn: "missing"}); err == nil {
		t.Fatalf("explicit missing column must fail")
	}
}

func TestReadCSVRequiresRepoColumn(t *testing.T) {
	path := writeSheet(t, "student,grade\nalice,10\n")
	_, err := ReadCSV(path, Options{})
	if err == nil || !strings.Contains(err.Error(), "no repository column") {
		t.Fatalf("expected repository column error, got %v", err)
	}
}

func TestReadCSVRejectsOtherExtensions(t *testing.T) {
	if _, err := ReadCSV("repos.xlsx", Options{}); err == nil {
		t.Fatalf("expected error for non-csv input")
	}
}

func TestDirName(t *testing.T) {
	cases := map[string]string{
		"https://github.com/school/hw-alice":      "school__hw-alice",
		"https://github.com/school/hw-alice.git/": "school__hw-alice",
		"git@host:solo":                           "git@host:solo",
	}
	for url, want := range cases {
		if got := DirName(url); got != want {
			t.Fatalf("DirName(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestCommand(t *testing.T) {
	r := Repo{URL: "https://github.com/school/hw", Path: "hw", Branch: "main", Depth: 1}
	got := strings.Join(r.Command(), " ")
	want := "git clone https://github.com/school/hw hw --depth 1 --branch main"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}

	bare := Repo{URL: "https://github.com/school/hw"}
	if got := strings.Join(bare.Command(), " "); got != "git clone https://github.com/school/hw" {
		t.Fatalf("bare command = %q", got)
	}
}

func TestCloneAllSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "alice")
	if err := os.MkdirAll(existing, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	repos := []Repo{
		{URL: "https://github.com/school/hw-alice", Path: existing},
		{URL: "https://github.com/school/hw-bob", Path: filepath.Join(dir, "bob")},
	}
	var calls [][]string
	st, err := CloneAll(repos, func(args []string) error {
		calls = append(calls, args)
		return nil
	})
	if err != nil {
		t.Fatalf("clone all: %v", err)
	}
	if len(st.Skipped) != 1 || st.Skipped[0] != existing {
		t.Fatalf("skipped = %v", st.Skipped)
	}
	if len(calls) != 1 || calls[0][2] != "https://github.com/school/hw-bob" {
		t.Fatalf("calls = %v", calls)
	}
	if len(st.Cloned) != 1 {
		t.Fatalf("cloned = %v", st.Cloned)
	}
}
