package problemset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownQuestion marks a question id outside the configured valid set.
var ErrUnknownQuestion = errors.New("problemset: unknown question id")

// Extractor turns free-form spreadsheet rows into a DB. The question field
// students fill in is messy: mixed case, accents, file names, stray
// punctuation and several ids in one cell. The extractor normalizes each
// token and applies the configured replacement tables.
type Extractor struct {
	clean         []string
	inputSynonyms map[string]string
	subs          map[string]string
	synonyms      map[string]string
	skip          map[string]bool
	valid         map[string]bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithCleanSubstrings removes the given substrings from the raw field
// before tokenizing. Useful for boilerplate like "submission of".
func WithCleanSubstrings(subs ...string) ExtractorOption {
	return func(e *Extractor) {
		for _, sub := range subs {
			e.clean = append(e.clean, normalizeInput(sub))
		}
	}
}

// WithInputSynonyms replaces whole raw fields before tokenizing. A last
// resort for cells nothing else can salvage.
func WithInputSynonyms(table map[string]string) ExtractorOption {
	return func(e *Extractor) {
		for from, to := range table {
			e.inputSynonyms[normalizeInput(from)] = to
		}
	}
}

// WithSubstitutions replaces substrings inside each id token.
func WithSubstitutions(table map[string]string) ExtractorOption {
	return func(e *Extractor) {
		for from, to := range table {
			e.subs[normalizeInput(from)] = to
		}
	}
}

// WithSynonyms maps whole normalized ids to their canonical form.
func WithSynonyms(table map[string]string) ExtractorOption {
	return func(e *Extractor) {
		for from, to := range table {
			e.synonyms[normalizeInput(from)] = to
		}
	}
}

// WithSkip drops the given ids silently.
func WithSkip(ids ...string) ExtractorOption {
	return func(e *Extractor) {
		for _, id := range ids {
			e.skip[normalizeInput(id)] = true
		}
	}
}

// WithValidIDs restricts extraction to the given ids; anything else makes
// Extract fail with ErrUnknownQuestion.
func WithValidIDs(ids ...string) ExtractorOption {
	return func(e *Extractor) {
		if e.valid == nil {
			e.valid = map[string]bool{}
		}
		for _, id := range ids {
			e.valid[normalizeInput(id)] = true
		}
	}
}

// NewExtractor builds an extractor with the given replacement tables.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		inputSynonyms: map[string]string{},
		subs:          map[string]string{},
		synonyms:      map[string]string{},
		skip:          map[string]bool{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads a CSV with student_id, question_id, answer, obs and
// timestamp columns and splits it into per-question submissions, keeping
// the newest per (question, student).
func (e *Extractor) Extract(r io.Reader) (DB, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("problemset: read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{"student_id", "question_id", "answer", "timestamp"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("problemset: sheet is missing column %q", name)
		}
	}

	db := DB{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("problemset: read row %d: %w", line, err)
		}
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		student := strings.ReplaceAll(cell("student_id"), "/", "")
		if student == "" {
			return nil, fmt.Errorf("problemset: row %d has no student_id", line)
		}
		submitted, err := parseTimestamp(cell("timestamp"))
		if err != nil {
			return nil, fmt.Errorf("problemset: row %d: %w", line, err)
		}
		ids, err := e.QuestionIDs(cell("question_id"))
		if err != nil {
			return nil, fmt.Errorf("problemset: row %d: %w", line, err)
		}

		sub := Submission{
			Answer:    cell("answer"),
			Note:      cell("obs"),
			Submitted: submitted,
		}
		for _, question := range ids {
			db.Add(question, student, sub)
		}
	}
	return db, nil
}

// QuestionIDs parses a raw question field into the sorted set of ids it
// names.
func (e *Extractor) QuestionIDs(raw string) ([]string, error) {
	field := normalizeInput(raw)
	if replacement, ok := e.inputSynonyms[field]; ok {
		field = replacement
	}
	for _, sub := range e.clean {
		field = strings.ReplaceAll(field, sub, " ")
	}

	seen := map[string]bool{}
	var out []string
	for _, token := range strings.Fields(field) {
		id, ok, err := e.parseToken(token)
		if err != nil {
			return nil, err
		}
		if ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Extractor) parseToken(token string) (string, bool, error) {
	for token != "" && token[0] >= '0' && token[0] <= '9' {
		token = token[1:]
	}
	token = strings.TrimSuffix(token, ".py")
	token = strings.Trim(token, `,.;-()[]{}'"`)
	token = strings.TrimPrefix(token, "test")
	token = strings.Trim(token, "-")
	for from, to := range e.subs {
		token = strings.ReplaceAll(token, from, to)
	}
	if token == "" || e.skip[token] {
		return "", false, nil
	}
	if canonical, ok := e.synonyms[token]; ok {
		token = canonical
	}
	if e.valid != nil && !e.valid[token] {
		return "", false, fmt.Errorf("%w: %q", ErrUnknownQuestion, token)
	}
	return token, true, nil
}

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeInput lowercases, folds accents and unifies separators so that
// "Função_2/Teste" and "funcao-2 teste" compare equal.
func normalizeInput(st string) string {
	st = strings.ReplaceAll(st, "/", " ")
	st = strings.ReplaceAll(st, "_", "-")
	st = strings.ToLower(st)
	if folded, _, err := transform.String(deaccent, st); err == nil {
		st = folded
	}
	return st
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
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
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
