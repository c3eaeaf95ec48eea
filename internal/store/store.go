// Package store persists one JSON document per submission so grading
// progress survives between runs. Documents are indented and newline
// terminated to stay diffable in version control.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docenthq/docent/internal/item"
)

const docExt = ".json"

// ErrNotFound is returned when no document exists for a key.
var ErrNotFound = errors.New("store: document not found")

// DecodeError marks a document that exists on disk but cannot be parsed.
// Runs treat it as a per-item failure rather than clobbering the file.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("store: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Store keeps documents for one source inside a single directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir. The directory is created lazily on the
// first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory documents live in.
func (s *Store) Dir() string { return s.dir }

// DocPath returns the on-disk path for a key's document.
func (s *Store) DocPath(key string) string {
	return filepath.Join(s.dir, key+docExt)
}

// Exists reports whether a document is present for key.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.DocPath(key))
	return err == nil
}

// ModTime returns the document's last modification time, ErrNotFound when
// the key has never been written.
func (s *Store) ModTime(key string) (time.Time, error) {
	info, err := os.Stat(s.DocPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Read loads the document for key.
func (s *Store) Read(key string) (*item.Item, error) {
	path := s.DocPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var it item.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return &it, nil
}

// Write persists the document for key, replacing any previous version.
func (s *Store) Write(key string, it *item.Item) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(it, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.DocPath(key), append(encoded, '\n'), 0o644)
}

// Merge folds step results into the persisted document and returns the
// updated item. The document must already exist; results only make sense
// for submissions the source has materialized.
func (s *Store) Merge(key string, results map[string]item.Result) (*item.Item, error) {
	it, err := s.Read(key)
	if err != nil {
		return nil, err
	}
	for name, res := range results {
		it.SetStep(name, res)
	}
	if err := s.Write(key, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Keys lists every key with a document, sorted.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, docExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, docExt))
	}
	sort.Strings(keys)
	return keys, nil
}
