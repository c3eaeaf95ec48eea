package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/logbook"
)

const (
	defaultTestCommand = "pytest --json-report"
	reportFile         = ".report.json"
	testLogFile        = ".test.log"
)

// Executor runs a test command inside a submission directory and returns
// its combined output. The error reflects the command's exit status; the
// runner only surfaces it when no report was produced, since failing tests
// exit non-zero too.
type Executor interface {
	Run(ctx context.Context, dir, command string) ([]byte, error)
}

// HostExecutor runs commands through the host shell.
type HostExecutor struct{}

// Run implements Executor.
func (HostExecutor) Run(ctx context.Context, dir, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// TestRunner invokes the test command against a submission and summarizes
// the machine-readable report it leaves behind.
type TestRunner struct {
	command string
	exec    Executor
	book    *logbook.Logbook
}

// TestRunnerOption configures a TestRunner.
type TestRunnerOption func(*TestRunner)

// WithCommand overrides the test command. Defaults to "pytest --json-report".
func WithCommand(command string) TestRunnerOption {
	return func(r *TestRunner) { r.command = command }
}

// WithExecutor swaps the executor, e.g. for the Docker sandbox.
func WithExecutor(ex Executor) TestRunnerOption {
	return func(r *TestRunner) { r.exec = ex }
}

// WithRunnerLogbook routes progress into book.
func WithRunnerLogbook(book *logbook.Logbook) TestRunnerOption {
	return func(r *TestRunner) { r.book = book }
}

// NewTestRunner creates a test-runner step executing on the host by default.
func NewTestRunner(opts ...TestRunnerOption) *TestRunner {
	r := &TestRunner{
		command: defaultTestCommand,
		exec:    HostExecutor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process runs the suite and records a test report. The command's own exit
// status is ignored as long as it produced a parsable report.
func (r *TestRunner) Process(ctx context.Context, it *item.Item) (item.Result, error) {
	r.book.Info("testing submission: [%s]", it.Key)

	out, runErr := r.exec.Run(ctx, it.Path, r.command)
	if err := os.WriteFile(filepath.Join(it.Path, testLogFile), out, 0o644); err != nil {
		return item.Result{}, fmt.Errorf("steps: write %s: %w", testLogFile, err)
	}

	report, err := readReport(filepath.Join(it.Path, reportFile))
	if err != nil {
		if runErr != nil {
			return item.Result{}, fmt.Errorf("steps: test run failed (%v): %w", runErr, err)
		}
		return item.Result{}, err
	}
	return item.ReportResult(report), nil
}

func readReport(path string) (item.TestReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return item.TestReport{}, fmt.Errorf("steps: missing test report: %w", err)
	}
	var raw struct {
		Summary struct {
			Passed int `json:"passed"`
			Failed int `json:"failed"`
			Total  int `json:"total"`
		} `json:"summary"`
		Tests []struct {
			NodeID  string `json:"nodeid"`
			Outcome string `json:"outcome"`
		} `json:"tests"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return item.TestReport{}, fmt.Errorf("steps: parse %s: %w", path, err)
	}

	report := item.TestReport{
		Passed: raw.Summary.Passed,
		Failed: raw.Summary.Failed,
		Total:  raw.Summary.Total,
	}
	if report.Total == 0 {
		report.Total = report.Passed + report.Failed
	}
	for _, tc := range raw.Tests {
		report.Cases = append(report.Cases, item.TestCase{ID: tc.NodeID, Outcome: tc.Outcome})
	}
	return report, nil
}
