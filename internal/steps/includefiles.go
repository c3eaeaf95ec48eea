package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/logbook"
)

// IncludeFiles copies reference files (test suites, fixtures) into each
// submission directory. Files the student already has are skipped when
// identical; modified copies are overwritten with a warning unless
// overwriting is turned off.
type IncludeFiles struct {
	dir       string
	files     []string
	overwrite bool
	book      *logbook.Logbook
}

// IncludeFilesOption configures an IncludeFiles step.
type IncludeFilesOption func(*IncludeFiles)

// WithOverwrite controls whether user-modified copies are replaced.
// Defaults to true.
func WithOverwrite(on bool) IncludeFilesOption {
	return func(s *IncludeFiles) { s.overwrite = on }
}

// WithIncludeLogbook routes progress into book.
func WithIncludeLogbook(book *logbook.Logbook) IncludeFilesOption {
	return func(s *IncludeFiles) { s.book = book }
}

// NewIncludeFiles creates a step copying files from the reference directory
// dir. A leading ~ in dir expands to the home directory.
func NewIncludeFiles(dir string, files []string, opts ...IncludeFilesOption) *IncludeFiles {
	s := &IncludeFiles{
		dir:       expandHome(dir),
		files:     files,
		overwrite: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process copies the configured files and records the paths it wrote.
func (s *IncludeFiles) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	s.book.Info("including files: [%s]", it.Key)

	var written []string
	for _, name := range s.files {
		src, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return item.Result{}, fmt.Errorf("steps: read reference file %s: %w", name, err)
		}
		target := filepath.Join(it.Path, name)
		if existing, err := os.ReadFile(target); err == nil {
			if !s.overwrite || bytes.Equal(existing, src) {
				continue
			}
			s.book.Warn("overwriting user file: %s:%s", it.Key, name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return item.Result{}, fmt.Errorf("steps: prepare %s: %w", target, err)
		}
		if err := os.WriteFile(target, src, 0o644); err != nil {
			return item.Result{}, fmt.Errorf("steps: write %s: %w", target, err)
		}
		written = append(written, target)
	}
	return item.FilesResult(written), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
