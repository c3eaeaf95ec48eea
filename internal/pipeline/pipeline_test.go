package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docenthq/docent/internal/item"
)

// memorySource keeps submissions in memory and records every persisted
// (key, step) pair so tests can assert exactly what was written and when.
type memorySource struct {
	order      []string
	docs       map[string]*item.Item
	persistLog []string
	collects   int
	updateErr  error
}

func newMemorySource(keys ...string) *memorySource {
	s := &memorySource{docs: map[string]*item.Item{}}
	for _, key := range keys {
		s.order = append(s.order, key)
		s.docs[key] = item.New(key, "/work/"+key)
	}
	return s
}

func (s *memorySource) Collect(ctx context.Context) ([]Entry, error) {
	s.collects++
	out := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, Entry{Key: key, Item: s.docs[key]})
	}
	return out, nil
}

func (s *memorySource) Ref(key string) (*item.Item, error) {
	it, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("memory source: unknown key %s", key)
	}
	return it, nil
}

func (s *memorySource) UpdateSteps(key string, results map[string]item.Result) (*item.Item, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	it, err := s.Ref(key)
	if err != nil {
		return nil, err
	}
	for name, res := range results {
		it.SetStep(name, res)
		s.persistLog = append(s.persistLog, key+"/"+name)
	}
	return it, nil
}

// recordingStep logs each invocation and fails for the configured keys.
func recordingStep(log *[]string, name string, failFor map[string]error) Step {
	return StepFunc(func(ctx context.Context, it *item.Item) (item.Result, error) {
		*log = append(*log, name+":"+it.Key)
		if err := failFor[it.Key]; err != nil {
			return item.Result{}, err
		}
		return item.TextResult(name + "-ok"), nil
	})
}

type wrappedStep struct {
	inner Step
	pre   []NamedStep
	post  []NamedStep
}

func (w *wrappedStep) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	return w.inner.Process(ctx, it)
}

func (w *wrappedStep) PreSteps() []NamedStep  { return w.pre }
func (w *wrappedStep) PostSteps() []NamedStep { return w.post }

// sourceWithPost doubles as step and source, the way feed implementations
// may register through AddStep. Process must never run.
type sourceWithPost struct {
	*memorySource
	post []NamedStep
}

func (s *sourceWithPost) PostSteps() []NamedStep { return s.post }

func (s *sourceWithPost) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	return item.Result{}, fmt.Errorf("memory source: registered as feed, not a step")
}

func equalStrings(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAddStepExpandsPreAndPostSteps(t *testing.T) {
	var log []string
	p := New()
	step := &wrappedStep{
		inner: recordingStep(&log, "fetch", nil),
		pre:   []NamedStep{{Name: "prepare", Step: recordingStep(&log, "fetch.prepare", nil)}},
		post:  []NamedStep{{Name: "verify", Step: recordingStep(&log, "fetch.verify", nil)}},
	}
	if err := p.AddStep("fetch", step); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	if err := p.AddStep("grade", recordingStep(&log, "grade", nil)); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	equalStrings(t, p.Steps(), []string{"fetch.prepare", "fetch", "fetch.verify", "grade"})
}

func TestAddStepRejectsDuplicates(t *testing.T) {
	var log []string
	p := New()
	if err := p.AddStep("grade", recordingStep(&log, "grade", nil)); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	if err := p.AddStep("grade", recordingStep(&log, "grade", nil)); err == nil {
		t.Fatalf("expected duplicate-name error")
	}
}

func TestAddStepRejectsSecondSource(t *testing.T) {
	p := New()
	if err := p.AddSource(newMemorySource("a")); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if err := p.AddSource(newMemorySource("b")); err == nil {
		t.Fatalf("expected second-source error")
	}
}

func TestSourcePostStepsRegisterNamespaced(t *testing.T) {
	var log []string
	src := &sourceWithPost{
		memorySource: newMemorySource("a"),
		post:         []NamedStep{{Name: "download", Step: recordingStep(&log, "download", nil)}},
	}
	p := New()
	if err := p.AddStep("prs", src); err != nil {
		t.Fatalf("AddStep: %v", err)
	}
	equalStrings(t, p.Steps(), []string{"prs.download"})
	if p.Source() == nil {
		t.Fatalf("source not registered")
	}
}

func TestExecutePendingRunsStepsInRegistrationOrder(t *testing.T) {
	var log []string
	src := newMemorySource("a", "b")
	p := New()
	p.MustAddStep("first", recordingStep(&log, "first", nil))
	p.MustAddStep("second", recordingStep(&log, "second", nil))
	if err := p.AddSource(src); err != nil {
		t.Fatal(err)
	}

	rep, err := p.ExecutePending(context.Background())
	if err != nil {
		t.Fatalf("ExecutePending: %v", err)
	}
	equalStrings(t, log, []string{"first:a", "first:b", "second:a", "second:b"})
	if rep.Executed != 4 || len(rep.Failures) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	equalStrings(t, src.persistLog, []string{"a/first", "b/first", "a/second", "b/second"})
}

func TestExecutePendingSkipsRecordedResults(t *testing.T) {
	var log []string
	src := newMemorySource("a", "b")
	src.docs["a"].SetStep("first", item.TextResult("old"))
	p := New()
	p.MustAddStep("first", recordingStep(&log, "first", nil))
	if err := p.AddSource(src); err != nil {
		t.Fatal(err)
	}

	rep, err := p.ExecutePending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	equalStrings(t, log, []string{"first:b"})
	if rep.Executed != 1 || rep.Skipped != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if got := src.docs["a"].Steps["first"].Text; got != "old" {
		t.Fatalf("recorded result overwritten: %q", got)
	}

	log = nil
	rep, err = p.ExecutePending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 0 || rep.Executed != 0 || rep.Skipped != 2 {
		t.Fatalf("second run not idempotent: log=%v report=%+v", log, rep)
	}
}

func TestStepFailureQuarantinesSubmissionForRun(t *testing.T) {
	var log []string
	src := newMemorySource("a", "b")
	boom := errors.New("runner exploded")
	p := New()
	p.MustAddStep("prep", recordingStep(&log, "prep", nil))
	p.MustAddStep("risky", recordingStep(&log, "risky", map[string]error{"a": boom}))
	p.MustAddStep("later", recordingStep(&log, "later", nil))
	if err := p.AddSource(src); err != nil {
		t.Fatal(err)
	}

	rep, err := p.ExecutePending(context.Background())
	if err != nil {
		t.Fatalf("ExecutePending: %v", err)
	}
	equalStrings(t, log, []string{"prep:a", "prep:b", "risky:a", "risky:b", "later:b"})
	if len(rep.Failures) != 1 {
		t.Fatalf("failures = %+v", rep.Failures)
	}
	f := rep.Failures[0]
	if f.Key != "a" || f.Step != "risky" || f.Kind != FailExternal {
		t.Fatalf("failure = %+v", f)
	}
	if !src.docs["a"].HasStep("prep") {
		t.Fatalf("earlier same-run result should stay persisted")
	}
	if src.docs["a"].HasStep("risky") || src.docs["a"].HasStep("later") {
		t.Fatalf("failed submission must not gain results: %v", src.docs["a"].Steps)
	}

	// Once the step stops failing, only the pending pairs execute.
	log = nil
	p2 := New()
	p2.MustAddStep("prep", recordingStep(&log, "prep", nil))
	p2.MustAddStep("risky", recordingStep(&log, "risky", nil))
	p2.MustAddStep("later", recordingStep(&log, "later", nil))
	if err := p2.AddSource(src); err != nil {
		t.Fatal(err)
	}
	rep, err = p2.ExecutePending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	equalStrings(t, log, []string{"risky:a", "later:a"})
	if rep.Executed != 2 {
		t.Fatalf("retry executed = %d", rep.Executed)
	}
}

func TestFailFastSurfacesStepError(t *testing.T) {
	var log []string
	src := newMemorySource("a", "b")
	boom := errors.New("bad parse")
	p := New(WithFailFast(true))
	p.MustAddStep("risky", recordingStep(&log, "risky", map[string]error{"a": boom}))
	p.MustAddStep("later", recordingStep(&log, "later", nil))
	if err := p.AddSource(src); err != nil {
		t.Fatal(err)
	}

	_, err := p.ExecutePending(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped step error, got %v", err)
	}
	equalStrings(t, log, []string{"risky:a"})
}

func TestPersistFailureAbortsRun(t *testing.T) {
	var log []string
	src := newMemorySource("a", "b")
	src.updateErr = errors.New("disk full")
	p := New()
	p.MustAddStep("first", recordingStep(&log, "first", nil))
	if err := p.AddSource(src); err != nil {
		t.Fatal(err)
	}

	rep, err := p.ExecutePending(context.Background())
	if err == nil || !errors.Is(err, src.updateErr) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if rep.Executed != 0 {
		t.Fatalf("nothing should count as recorded, got %d", rep.Executed)
	}
	equalStrings(t, log, []string{"first:a"})
}

func TestExecutePendingWithoutSource(t *testing.T) {
	p := New()
	if _, err := p.ExecutePending(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestExecutePendingHonorsContext(t *testing.T) {
	var log []string
	src := newMemorySource("a")
	p := New()
	p.MustAddStep("first", recordingStep(&log, "first", nil))
	if err := p.AddSource(src); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ExecutePending(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("no step should run after cancellation: %v", log)
	}
}
