package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docenthq/docent/internal/github"
	"github.com/docenthq/docent/internal/item"
)

type fakeClient struct {
	prs       []github.PullRequest
	files     map[int][]github.PullRequestFile
	users     map[string]github.User
	listCalls int
	fileCalls int
	downloads []string
}

func (c *fakeClient) ListPullRequests(ctx context.Context, repo, state string) ([]github.PullRequest, error) {
	c.listCalls++
	return c.prs, nil
}

func (c *fakeClient) ListFiles(ctx context.Context, repo string, number int) ([]github.PullRequestFile, error) {
	c.fileCalls++
	return c.files[number], nil
}

func (c *fakeClient) GetUser(ctx context.Context, login string) (github.User, error) {
	u, ok := c.users[login]
	if !ok {
		return github.User{}, fmt.Errorf("fake client: unknown user %s", login)
	}
	return u, nil
}

func (c *fakeClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	c.downloads = append(c.downloads, rawURL)
	return []byte("content of " + rawURL), nil
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		prs: []github.PullRequest{{
			ID:        42,
			Number:    7,
			Title:     "hw1 solution",
			HTMLURL:   "https://github.com/course/hw1/pull/7",
			CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
			User:      github.User{Login: "ada"},
		}},
		files: map[int][]github.PullRequestFile{
			7: {
				{Filename: "src/main.py", RawURL: "http://raw/src/main.py"},
				{Filename: ".secret", RawURL: "http://raw/.secret"},
			},
		},
		users: map[string]github.User{
			"ada": {Login: "ada", Name: "Ada L", Email: "ada@example.edu"},
		},
	}
}

func TestPRsCollectMaterializesSubmission(t *testing.T) {
	dest := t.TempDir()
	client := newFakeClient()
	src := NewPRs(client, "course/hw1", dest)

	entries, err := src.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "ada-42" {
		t.Fatalf("entries = %+v", entries)
	}

	it := entries[0].Item
	if got, _ := it.FieldString("user.name"); got != "Ada L" {
		t.Fatalf("user.name = %q", got)
	}
	dl := it.Steps["download"]
	if dl.Kind != item.KindData || dl.Data["title"] != "hw1 solution" {
		t.Fatalf("download result = %+v", dl)
	}

	if _, err := os.Stat(filepath.Join(dest, "ada-42", "src", "main.py")); err != nil {
		t.Fatalf("expected PR file on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "ada-42", ".secret")); err == nil {
		t.Fatalf("dotfiles should be skipped by default")
	}
	if !src.Store().Exists("ada-42") {
		t.Fatalf("document not persisted")
	}
}

func TestPRsCollectServesFreshFromStore(t *testing.T) {
	dest := t.TempDir()
	client := newFakeClient()
	src := NewPRs(client, "course/hw1", dest, WithRefresh(2*time.Hour))

	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	firstFileCalls := client.fileCalls

	entries, err := src.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if client.fileCalls != firstFileCalls {
		t.Fatalf("fresh submission should not hit the files API")
	}
	if len(entries) != 1 || entries[0].Key != "ada-42" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestPRsCollectRefetchesStaleButKeepsResults(t *testing.T) {
	dest := t.TempDir()
	client := newFakeClient()
	src := NewPRs(client, "course/hw1", dest, WithRefresh(0))

	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := src.UpdateSteps("ada-42", map[string]item.Result{
		"grade": item.ScoreResult(1),
	}); err != nil {
		t.Fatal(err)
	}
	downloadsAfterFirst := len(client.downloads)

	entries, err := src.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if client.fileCalls != 2 {
		t.Fatalf("stale submission should relist files, calls = %d", client.fileCalls)
	}
	if len(client.downloads) != downloadsAfterFirst {
		t.Fatalf("existing files should not redownload")
	}
	if !entries[0].Item.HasStep("grade") {
		t.Fatalf("reloaded document lost recorded results")
	}
}

func TestPRsIncludePaths(t *testing.T) {
	dest := t.TempDir()
	client := newFakeClient()
	client.files[7] = []github.PullRequestFile{
		{Filename: "src/solve.py", RawURL: "http://raw/src/solve.py"},
		{Filename: "notes.txt", RawURL: "http://raw/notes.txt"},
		{Filename: "answers.yaml", RawURL: "http://raw/answers.yaml"},
	}
	src := NewPRs(client, "course/hw1", dest, WithIncludePaths([]string{"src/", "*.yaml"}))

	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"src/solve.py", "answers.yaml"} {
		if _, err := os.Stat(filepath.Join(dest, "ada-42", filepath.FromSlash(want))); err != nil {
			t.Fatalf("expected %s: %v", want, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "ada-42", "notes.txt")); err == nil {
		t.Fatalf("notes.txt should have been filtered out")
	}
}

func TestPRsFreshnessClock(t *testing.T) {
	dest := t.TempDir()
	client := newFakeClient()
	now := time.Now()
	src := NewPRs(client, "course/hw1", dest,
		WithRefresh(time.Hour),
		WithClock(func() time.Time { return now }),
	)
	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Jump past the refresh window; the document counts as stale again.
	now = now.Add(2 * time.Hour)
	if _, err := src.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.fileCalls != 2 {
		t.Fatalf("expected refetch after window elapsed, calls = %d", client.fileCalls)
	}
}
