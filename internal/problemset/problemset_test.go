package problemset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func ids(t *testing.T, e *Extractor, raw string) []string {
	t.Helper()
	out, err := e.QuestionIDs(raw)
	if err != nil {
		t.Fatalf("QuestionIDs(%q): %v", raw, err)
	}
	return out
}

func TestQuestionIDsNormalizesTokens(t *testing.T) {
	e := NewExtractor()
	cases := []struct {
		raw  string
		want []string
	}{
		{"Fibonacci.py", []string{"fibonacci"}},
		{"12-fibonacci.py", []string{"fibonacci"}},
		{"test-collatz", []string{"collatz"}},
		{"Função", []string{"funcao"}},
		{"(fibonacci), collatz; fibonacci", []string{"collatz", "fibonacci"}},
		{"produto_escalar/vetores", []string{"produto-escalar", "vetores"}},
		{"", nil},
	}
	for _, tc := range cases {
		if got := ids(t, e, tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("QuestionIDs(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestQuestionIDsReplacementTables(t *testing.T) {
	e := NewExtractor(
		WithCleanSubstrings("entrega da semana"),
		WithInputSynonyms(map[string]string{"tudo": "fibonacci collatz"}),
		WithSubstitutions(map[string]string{"colatz": "collatz"}),
		WithSynonyms(map[string]string{"fib": "fibonacci"}),
		WithSkip("draft"),
	)

	if got := ids(t, e, "Entrega da Semana fib"); !reflect.DeepEqual(got, []string{"fibonacci"}) {
		t.Fatalf("clean + synonym = %v", got)
	}
	if got := ids(t, e, "TUDO"); !reflect.DeepEqual(got, []string{"collatz", "fibonacci"}) {
		t.Fatalf("input synonym = %v", got)
	}
	if got := ids(t, e, "colatz.py"); !reflect.DeepEqual(got, []string{"collatz"}) {
		t.Fatalf("substitution = %v", got)
	}
	if got := ids(t, e, "draft fibonacci"); !reflect.DeepEqual(got, []string{"fibonacci"}) {
		t.Fatalf("skip = %v", got)
	}
}

func TestQuestionIDsValidSet(t *testing.T) {
	e := NewExtractor(WithValidIDs("fibonacci"))

	if got := ids(t, e, "fibonacci"); !reflect.DeepEqual(got, []string{"fibonacci"}) {
		t.Fatalf("valid id = %v", got)
	}
	_, err := e.QuestionIDs("collatz")
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
}

const submissionSheet = `student_id,question_id,answer,obs,timestamp
ada,fibonacci,print(2),late,2026-03-02 10:00:00
ada/,Fibonacci.py,print(1),,2026-03-01 10:00:00
bob,"fibonacci collatz",pass,,2026-03-01 09:00:00
`

func TestExtractKeepsNewestSubmission(t *testing.T) {
	db, err := NewExtractor().Extract(strings.NewReader(submissionSheet))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := db.Questions(); !reflect.DeepEqual(got, []string{"collatz", "fibonacci"}) {
		t.Fatalf("Questions = %v", got)
	}
	ada := db["fibonacci"]["ada"]
	if ada.Answer != "print(2)" || ada.Note != "late" {
		t.Fatalf("ada = %+v, want the newest submission", ada)
	}
	if _, ok := db["collatz"]["bob"]; !ok {
		t.Fatal("bob missing from collatz")
	}
	if _, ok := db["fibonacci"]["bob"]; !ok {
		t.Fatal("bob missing from fibonacci")
	}
}

func TestExtractMissingColumn(t *testing.T) {
	_, err := NewExtractor().Extract(strings.NewReader("question_id,answer,timestamp\nq,a,2026-03-01 10:00:00\n"))
	if err == nil || !strings.Contains(err.Error(), "student_id") {
		t.Fatalf("err = %v, want missing column complaint", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	submitted := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	db := DB{}
	db.Add("fibonacci", "ada", Submission{Answer: "print(1)", Note: "late", Submitted: submitted})

	if err := Save(root, db); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "fibonacci", "ada", "data")); err != nil {
		t.Fatalf("data dir: %v", err)
	}

	got, err := Load(root, "fibonacci", "ada")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Answer != "print(1)" || got.Note != "late" || !got.Submitted.Equal(submitted) {
		t.Fatalf("Load = %+v", got)
	}
}

func TestUpdateInfoKeepsExtraKeys(t *testing.T) {
	root := t.TempDir()
	db := DB{}
	db.Add("fibonacci", "ada", Submission{Answer: "print(1)", Submitted: time.Now().UTC()})
	if err := Save(root, db); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := UpdateInfo(root, "fibonacci", "ada", func(info map[string]any) {
		info["grade"] = 0.9
	})
	if err != nil {
		t.Fatalf("UpdateInfo: %v", err)
	}

	info, err := ReadInfo(root, "fibonacci", "ada")
	if err != nil {
		t.Fatalf("ReadInfo: %v", err)
	}
	if info["grade"] != 0.9 {
		t.Fatalf("grade = %v, want 0.9", info["grade"])
	}
	if got, _ := Load(root, "fibonacci", "ada"); got.Answer != "print(1)" {
		t.Fatalf("answer = %q after update", got.Answer)
	}
}

func TestAddKeepsNewest(t *testing.T) {
	db := DB{}
	newer := Submission{Answer: "new", Submitted: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	older := Submission{Answer: "old", Submitted: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	db.Add("q", "s", newer)
	db.Add("q", "s", older)
	if db["q"]["s"].Answer != "new" {
		t.Fatalf("older submission replaced newer one: %+v", db["q"]["s"])
	}

	db.Add("q", "s", Submission{Answer: "newest", Submitted: newer.Submitted.Add(time.Hour)})
	if db["q"]["s"].Answer != "newest" {
		t.Fatalf("newest submission not kept: %+v", db["q"]["s"])
	}
}
