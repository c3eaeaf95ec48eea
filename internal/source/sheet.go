package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/pipeline"
)

var (
	urlPattern    = regexp.MustCompile(`^https?://`)
	githubPattern = regexp.MustCompile(`^https?://github\.com/(.+)$`)
)

// Transform converts a raw spreadsheet cell into its typed field value.
type Transform func(value string) (any, error)

// Fetcher downloads the content behind a URL cell.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// Sheet collects one submission per spreadsheet row, typically a form-export
// CSV. Rows sharing an id keep only the most recent one. Columns named in
// the files map are not stored on the document; their cells materialize as
// files in the submission directory instead, downloading URL cells and
// treating a GitHub repository URL as "fetch this filename from master".
type Sheet struct {
	Base
	path        string
	dest        string
	idField     string
	sortField   string
	renames     map[string]string
	transforms  map[string]Transform
	fileColumns map[string]string
	fetch       Fetcher
	book        *logbook.Logbook
}

// SheetOption configures a Sheet source.
type SheetOption func(*Sheet)

// WithColumns renames csv columns to field names, on top of the default
// Timestamp->created rename.
func WithColumns(renames map[string]string) SheetOption {
	return func(s *Sheet) {
		for col, field := range renames {
			s.renames[col] = field
		}
	}
}

// WithFiles maps field names to the filename their cell materializes as.
// Replaces the default {"file": "data.txt"}.
func WithFiles(files map[string]string) SheetOption {
	return func(s *Sheet) { s.fileColumns = files }
}

// WithTransforms registers cell transforms by field name, on top of the
// default created->timestamp parse.
func WithTransforms(transforms map[string]Transform) SheetOption {
	return func(s *Sheet) {
		for field, fn := range transforms {
			s.transforms[field] = fn
		}
	}
}

// WithID sets the dotted field identifying a submission. Defaults to
// "user.id".
func WithID(field string) SheetOption {
	return func(s *Sheet) { s.idField = field }
}

// WithSort sets the field rows are ordered by before deduplication. Empty
// keeps file order. Defaults to "created".
func WithSort(field string) SheetOption {
	return func(s *Sheet) { s.sortField = field }
}

// WithFetcher overrides the URL downloader. Intended for tests.
func WithFetcher(f Fetcher) SheetOption {
	return func(s *Sheet) { s.fetch = f }
}

// WithSheetLogbook routes collection progress into book.
func WithSheetLogbook(book *logbook.Logbook) SheetOption {
	return func(s *Sheet) { s.book = book }
}

// NewSheet creates a spreadsheet source reading path, rooted at dest.
func NewSheet(path, dest string, opts ...SheetOption) *Sheet {
	s := &Sheet{
		Base:        NewBase(dest),
		path:        path,
		dest:        dest,
		idField:     "user.id",
		sortField:   "created",
		renames:     map[string]string{"Timestamp": "created"},
		transforms:  map[string]Transform{"created": timestampTransform},
		fileColumns: map[string]string{"file": "data.txt"},
		fetch:       httpFetcher,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sheetRow struct {
	fields map[string]any
}

// Collect parses the sheet, dedupes rows by id keeping the most recent, and
// materializes one submission per surviving row, newest first.
func (s *Sheet) Collect(ctx context.Context) ([]pipeline.Entry, error) {
	rows, err := s.readRows()
	if err != nil {
		return nil, err
	}
	if s.sortField != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return lessValue(rows[i].fields[s.sortField], rows[j].fields[s.sortField])
		})
	}

	seen := map[string]bool{}
	var entries []pipeline.Entry
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		id, ok := stringifyCell(row.fields[s.idField])
		if !ok || id == "" {
			return nil, fmt.Errorf("source: row missing id field %s: %w", s.idField, pipeline.ErrBadConfig)
		}
		if seen[id] {
			s.book.Warn("repeated submission: %s", id)
			continue
		}
		seen[id] = true

		key := sanitizeKey(id)
		it, err := s.materializeRow(ctx, key, row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, pipeline.Entry{Key: key, Item: it})
	}
	return entries, nil
}

func (s *Sheet) readRows() ([]sheetRow, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("source: open sheet: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("source: parse sheet %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		name := strings.TrimSpace(col)
		if renamed, ok := s.renames[name]; ok {
			name = renamed
		}
		header[i] = name
	}

	rows := make([]sheetRow, 0, len(records)-1)
	for rowIdx, record := range records[1:] {
		fields := make(map[string]any, len(record))
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			field := header[i]
			if fn, ok := s.transforms[field]; ok {
				value, err := fn(cell)
				if err != nil {
					return nil, fmt.Errorf("source: row %d field %s: %w", rowIdx+2, field, err)
				}
				fields[field] = value
				continue
			}
			fields[field] = cell
		}
		rows = append(rows, sheetRow{fields: fields})
	}
	return rows, nil
}

func (s *Sheet) materializeRow(ctx context.Context, key string, row sheetRow) (*item.Item, error) {
	dir := filepath.Join(s.dest, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("source: prepare %s: %w", dir, err)
	}

	for field, fname := range s.fileColumns {
		cell, _ := stringifyCell(row.fields[field])
		if err := s.materializeFile(ctx, dir, fname, cell); err != nil {
			return nil, err
		}
	}

	if s.Store().Exists(key) {
		return s.Ref(key)
	}

	it := item.New(key, dir)
	for field, value := range row.fields {
		if _, isFile := s.fileColumns[field]; isFile {
			continue
		}
		it.SetField(field, documentValue(value))
	}
	if err := s.Store().Write(key, it); err != nil {
		return nil, err
	}
	s.book.Info("registered %s", key)
	return it, nil
}

// materializeFile writes a file column's cell into the submission
// directory. Existing files are kept so graded work stays put.
func (s *Sheet) materializeFile(ctx context.Context, dir, fname, cell string) error {
	target := filepath.Join(dir, fname)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	content := []byte(cell)
	if m := githubPattern.FindStringSubmatch(strings.TrimSpace(cell)); m != nil {
		repo := strings.TrimSuffix(m[1], "/")
		url := fmt.Sprintf("https://raw.githubusercontent.com/%s/master/%s", repo, fname)
		s.book.Info("downloading submission from %s", url)
		data, err := s.fetch(ctx, url)
		if err != nil {
			return fmt.Errorf("source: fetch %s: %w", url, err)
		}
		content = data
	} else if urlPattern.MatchString(strings.TrimSpace(cell)) {
		url := strings.TrimSpace(cell)
		s.book.Info("downloading submission from %s", url)
		data, err := s.fetch(ctx, url)
		if err != nil {
			return fmt.Errorf("source: fetch %s: %w", url, err)
		}
		content = data
	}

	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("source: write %s: %w", target, err)
	}
	return nil
}

// timestampTransform parses the formats course spreadsheets tend to export.
func timestampTransform(value string) (any, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02 3:04:05 PM",
		"01/02/2006 15:04:05",
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", trimmed)
}

func lessValue(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Before(bt)
	}
	as, _ := stringifyCell(a)
	bs, _ := stringifyCell(b)
	return as < bs
}

func stringifyCell(v any) (string, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339), true
	}
	return item.Stringify(v)
}

func documentValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

func sanitizeKey(id string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	return replacer.Replace(strings.TrimSpace(id))
}

func httpFetcher(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
