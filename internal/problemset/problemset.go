// Package problemset splits submission spreadsheets into a per-question,
// per-student directory tree that graders can point pipelines at.
package problemset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Submission is one student's answer to one question.
type Submission struct {
	Answer    string    `json:"-"`
	Note      string    `json:"note,omitempty"`
	Submitted time.Time `json:"timestamp"`
}

// DB maps question id to student id to the student's newest submission.
type DB map[string]map[string]Submission

// Add records a submission, keeping the newest one per (question, student).
func (db DB) Add(question, student string, sub Submission) {
	students, ok := db[question]
	if !ok {
		students = map[string]Submission{}
		db[question] = students
	}
	if prev, ok := students[student]; ok && sub.Submitted.Before(prev.Submitted) {
		return
	}
	students[student] = sub
}

// Questions lists the question ids in sorted order.
func (db DB) Questions() []string {
	out := make([]string, 0, len(db))
	for question := range db {
		out = append(out, question)
	}
	sort.Strings(out)
	return out
}

// Save writes the whole database under root.
func Save(root string, db DB) error {
	for question, students := range db {
		for student, sub := range students {
			if err := SaveSubmission(root, question, student, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveSubmission writes one submission as <root>/<question>/<student>/ with
// info.json, answer.data and an empty data directory for attachments.
func SaveSubmission(root, question, student string, sub Submission) error {
	dir := filepath.Join(root, question, student)
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("problemset: create %s: %w", dir, err)
	}
	if err := writeInfo(filepath.Join(dir, "info.json"), sub); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "answer.data"), []byte(sub.Answer), 0o644); err != nil {
		return fmt.Errorf("problemset: write answer for %s/%s: %w", question, student, err)
	}
	return nil
}

// Load reads one submission back from the tree.
func Load(root, question, student string) (Submission, error) {
	dir := filepath.Join(root, question, student)
	raw, err := os.ReadFile(filepath.Join(dir, "info.json"))
	if err != nil {
		return Submission{}, fmt.Errorf("problemset: read info for %s/%s: %w", question, student, err)
	}
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Submission{}, fmt.Errorf("problemset: decode info for %s/%s: %w", question, student, err)
	}
	answer, err := os.ReadFile(filepath.Join(dir, "answer.data"))
	if err != nil {
		return Submission{}, fmt.Errorf("problemset: read answer for %s/%s: %w", question, student, err)
	}
	sub.Answer = string(answer)
	return sub, nil
}

// ReadInfo returns the raw info document, extra keys included.
func ReadInfo(root, question, student string) (map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(root, question, student, "info.json"))
	if err != nil {
		return nil, fmt.Errorf("problemset: read info for %s/%s: %w", question, student, err)
	}
	info := map[string]any{}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("problemset: decode info for %s/%s: %w", question, student, err)
	}
	return info, nil
}

// UpdateInfo applies fn to the info document and writes it back. Grading
// tools use this to annotate submissions without touching the answer.
func UpdateInfo(root, question, student string, fn func(info map[string]any)) error {
	info, err := ReadInfo(root, question, student)
	if err != nil {
		return err
	}
	fn(info)
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("problemset: encode info for %s/%s: %w", question, student, err)
	}
	path := filepath.Join(root, question, student, "info.json")
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("problemset: write %s: %w", path, err)
	}
	return nil
}

func writeInfo(path string, sub Submission) error {
	raw, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("problemset: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("problemset: write %s: %w", path, err)
	}
	return nil
}
