// internal/tui/board.go
//
// The board screen: a submissions × steps grid fed by snapshots of the
// document store, a detail panel for the selected submission, and an
// enter-to-grade trigger that runs the pipeline in a background command.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/pipeline"
	"github.com/docenthq/docent/internal/store"
	"github.com/docenthq/docent/plugins"
)

const boardRefreshInterval = 3 * time.Second

var (
	gridHeadStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	cellDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	cellPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	cellFailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boardNoteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	detailTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// boardRow is one submission's recorded results, snapshotted from its
// document.
type boardRow struct {
	Key     string
	Cells   map[string]string
	Steps   map[string]item.Result
	Updated time.Time
	Broken  bool
}

// cellRef addresses one (submission, step) cell on the grid.
type cellRef struct {
	key  string
	step string
}

type boardRefreshMsg struct {
	rows []boardRow
	err  error
}

type boardTickMsg struct{}

type runFinishedMsg struct {
	report *pipeline.RunReport
	err    error
}

// boardView drives one pipeline: it watches the document store and can
// kick off grading runs.
type boardView struct {
	app       *App
	def       plugins.PipelineDefinition
	pipe      *pipeline.Pipeline
	stepNames []string

	rows      []boardRow
	selection int
	loaded    bool
	err       error

	running bool
	spin    spinner.Model
	lastRun *pipeline.RunReport

	width  int
	height int
}

func newBoardView(app *App, file plugins.DefinitionFile) (*boardView, error) {
	def := file.Definition.Normalized()
	pipe, err := plugins.Build(def, plugins.BuildOptions{
		Registry: app.registry,
		Config:   app.config,
		Book:     app.book,
		Client:   app.client,
	})
	if err != nil {
		return nil, err
	}
	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))),
	)
	return &boardView{
		app:       app,
		def:       def,
		pipe:      pipe,
		stepNames: pipe.Steps(),
		spin:      spin,
	}, nil
}

func (v *boardView) Init() tea.Cmd {
	return tea.Batch(v.fetchRows(), v.scheduleRefresh())
}

func (v *boardView) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case boardRefreshMsg:
		if m.err != nil {
			v.err = m.err
			return nil
		}
		v.err = nil
		v.loaded = true
		v.rows = m.rows
		if v.selection >= len(m.rows) {
			v.selection = max(0, len(m.rows)-1)
		}
		return nil
	case boardTickMsg:
		return tea.Batch(v.fetchRows(), v.scheduleRefresh())
	case runFinishedMsg:
		return v.finishRun(m)
	case spinner.TickMsg:
		if !v.running {
			return nil
		}
		var cmd tea.Cmd
		v.spin, cmd = v.spin.Update(m)
		return cmd
	case tea.KeyMsg:
		return v.handleKey(m)
	}
	return nil
}

func (v *boardView) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if v.selection > 0 {
			v.selection--
		}
	case "down", "j":
		if v.selection < len(v.rows)-1 {
			v.selection++
		}
	case "r":
		return v.fetchRows()
	case "enter", "g":
		return v.startRun()
	}
	return nil
}

func (v *boardView) resize(width, height int) {
	v.width = width
	v.height = height
}

// fetchRows snapshots the document store off the Elm loop.
func (v *boardView) fetchRows() tea.Cmd {
	docs := store.New(v.app.config.DataDir())
	names := v.stepNames
	return func() tea.Msg {
		rows, err := buildRows(docs, names)
		return boardRefreshMsg{rows: rows, err: err}
	}
}

func (v *boardView) scheduleRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return boardTickMsg{}
	})
}

func buildRows(docs *store.Store, stepNames []string) ([]boardRow, error) {
	keys, err := docs.Keys()
	if err != nil {
		return nil, err
	}
	rows := make([]boardRow, 0, len(keys))
	for _, key := range keys {
		it, err := docs.Read(key)
		if err != nil {
			rows = append(rows, boardRow{Key: key, Broken: true})
			continue
		}
		row := boardRow{Key: key, Cells: map[string]string{}, Steps: it.Steps}
		if mod, err := docs.ModTime(key); err == nil {
			row.Updated = mod
		}
		for _, name := range stepNames {
			if res, ok := it.Steps[name]; ok {
				row.Cells[name] = cellText(res)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (v *boardView) startRun() tea.Cmd {
	if v.running {
		v.setStatus("A grading run is already in progress")
		return nil
	}
	v.running = true
	v.setStatus(fmt.Sprintf("Grading %s", v.def.Name))
	pipe := v.pipe
	run := func() tea.Msg {
		report, err := pipe.ExecutePending(context.Background())
		return runFinishedMsg{report: report, err: err}
	}
	return tea.Batch(v.spin.Tick, run)
}

func (v *boardView) finishRun(msg runFinishedMsg) tea.Cmd {
	v.running = false
	if msg.report != nil {
		v.lastRun = msg.report
	}
	if msg.err != nil {
		v.setStatus(fmt.Sprintf("Run failed: %v", msg.err))
		return v.fetchRows()
	}
	if msg.report != nil {
		v.setStatus(fmt.Sprintf("Run done: %d recorded, %d skipped, %d failed",
			msg.report.Executed, msg.report.Skipped, len(msg.report.Failures)))
	}
	return v.fetchRows()
}

func (v *boardView) setStatus(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	v.app.statusMsg = message
	v.app.book.Info("%s", message)
}

// failedCells indexes the last run's quarantined pairs for the grid.
func (v *boardView) failedCells() map[cellRef]pipeline.Failure {
	out := map[cellRef]pipeline.Failure{}
	if v.lastRun == nil {
		return out
	}
	for _, f := range v.lastRun.Failures {
		out[cellRef{key: f.Key, step: f.Step}] = f
	}
	return out
}

func (v *boardView) View() string {
	width := v.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
		rightWidth = 0
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render(fmt.Sprintf("✎ DOCENT · %s", v.def.Name))
	left := lipgloss.JoinVertical(lipgloss.Left,
		v.renderSummary(leftWidth-4),
		"",
		v.renderGrid(leftWidth-4),
	)
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(left)
	body := leftBox
	if rightWidth > 0 {
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(v.renderDetail(rightWidth - 4))
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	}
	sections := []string{header, body}
	if logPanel := v.app.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Enter → grade pending    r → refresh    ↑/↓ → select    Esc → back    q → quit")
	sections = append(sections, hint)
	status := v.app.statusMsg
	if v.running {
		status = fmt.Sprintf("%s %s", v.spin.View(), status)
	}
	if status != "" {
		footer := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Render(status)
		sections = append(sections, footer)
	}
	return strings.Join(sections, "\n")
}

func (v *boardView) renderSummary(width int) string {
	graded := 0
	for _, row := range v.rows {
		if row.Broken {
			continue
		}
		if len(row.Cells) == len(v.stepNames) {
			graded++
		}
	}
	lines := []string{
		fmt.Sprintf("Source: %s · %d step(s)", v.def.Source.Type, len(v.stepNames)),
		fmt.Sprintf("Submissions: %d · fully graded: %d", len(v.rows), graded),
	}
	if v.lastRun != nil {
		lines = append(lines, fmt.Sprintf("Last run: %d recorded · %d skipped · %d failed",
			v.lastRun.Executed, v.lastRun.Skipped, len(v.lastRun.Failures)))
	}
	if v.err != nil {
		lines = append(lines, cellFailStyle.Render(fmt.Sprintf("⚠ %v", v.err)))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (v *boardView) renderGrid(width int) string {
	if !v.loaded {
		return boardNoteStyle.Render("Reading submissions…")
	}
	if len(v.rows) == 0 {
		return boardNoteStyle.Render("No submissions collected yet. Press enter to grade.")
	}
	failed := v.failedCells()

	keyWidth := len("submission")
	for _, row := range v.rows {
		keyWidth = max(keyWidth, lipgloss.Width(clip(row.Key, 28)))
	}
	colWidths := make([]int, len(v.stepNames))
	for i, name := range v.stepNames {
		w := lipgloss.Width(name)
		for _, row := range v.rows {
			w = max(w, lipgloss.Width(cellDisplay(row, name, failed)))
		}
		colWidths[i] = w
	}

	head := []string{"  " + pad("submission", keyWidth)}
	for i, name := range v.stepNames {
		head = append(head, pad(name, colWidths[i]))
	}
	lines := []string{gridHeadStyle.Render(strings.Join(head, "  "))}

	start, end := v.rowWindow()
	if start > 0 {
		lines = append(lines, boardNoteStyle.Render(fmt.Sprintf("  … %d above", start)))
	}
	for idx := start; idx < end; idx++ {
		row := v.rows[idx]
		indicator := " "
		if idx == v.selection {
			indicator = ">"
		}
		cols := []string{indicator + " " + pad(clip(row.Key, 28), keyWidth)}
		if row.Broken {
			cols = append(cols, cellFailStyle.Render("unreadable document"))
			lines = append(lines, strings.Join(cols, "  "))
			continue
		}
		for i, name := range v.stepNames {
			text := pad(cellDisplay(row, name, failed), colWidths[i])
			if _, ok := failed[cellRef{key: row.Key, step: name}]; ok {
				cols = append(cols, cellFailStyle.Render(text))
			} else if _, ok := row.Cells[name]; ok {
				cols = append(cols, cellDoneStyle.Render(text))
			} else {
				cols = append(cols, cellPendingStyle.Render(text))
			}
		}
		lines = append(lines, strings.Join(cols, "  "))
	}
	if end < len(v.rows) {
		lines = append(lines, boardNoteStyle.Render(fmt.Sprintf("  … %d more", len(v.rows)-end)))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

// rowWindow keeps the selection visible when the grid outgrows the screen.
func (v *boardView) rowWindow() (int, int) {
	visible := len(v.rows)
	if v.height > 0 {
		visible = max(4, v.height-16)
	}
	start := 0
	if v.selection >= visible {
		start = v.selection - visible + 1
	}
	return start, min(start+visible, len(v.rows))
}

func (v *boardView) renderDetail(width int) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("Submission")
	if len(v.rows) == 0 {
		note := boardNoteStyle.Render("Nothing collected yet.")
		return lipgloss.JoinVertical(lipgloss.Left, title, note)
	}
	row := v.rows[min(v.selection, len(v.rows)-1)]
	lines := []string{row.Key}
	if !row.Updated.IsZero() {
		lines = append(lines, boardNoteStyle.Render(
			fmt.Sprintf("updated %s ago", humanizeDuration(time.Since(row.Updated)))))
	}
	lines = append(lines, "")
	if row.Broken {
		lines = append(lines, cellFailStyle.Render("Document cannot be decoded."))
		lines = append(lines, detailTextStyle.Render("Grading skips it until the file is repaired."))
	} else {
		failed := v.failedCells()
		for _, name := range v.stepNames {
			if f, ok := failed[cellRef{key: row.Key, step: name}]; ok {
				lines = append(lines, fmt.Sprintf("%s: %s",
					name, cellFailStyle.Render(fmt.Sprintf("✗ %s · %s", f.Kind, clip(f.Message, 60)))))
				continue
			}
			if res, ok := row.Steps[name]; ok {
				lines = append(lines, fmt.Sprintf("%s: %s", name, detailValue(res)))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", name, cellPendingStyle.Render("pending")))
		}
	}
	body := detailTextStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().Width(max(20, width)).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, body))
}

// cellDisplay is the compact grid text for one (submission, step) cell.
func cellDisplay(row boardRow, name string, failed map[cellRef]pipeline.Failure) string {
	if f, ok := failed[cellRef{key: row.Key, step: name}]; ok {
		return "✗ " + f.Kind
	}
	if cell, ok := row.Cells[name]; ok {
		return cell
	}
	return "·"
}

func cellText(r item.Result) string {
	switch r.Kind {
	case item.KindScore:
		return strconv.FormatFloat(r.Score, 'f', 2, 64)
	case item.KindReport:
		if r.Report == nil {
			return "report"
		}
		return fmt.Sprintf("%d/%d", r.Report.Passed, r.Report.Total)
	case item.KindText:
		return clip(r.Text, 14)
	case item.KindFiles:
		return fmt.Sprintf("%d file(s)", len(r.Files))
	case item.KindTags:
		return fmt.Sprintf("%d tag(s)", len(r.TagList()))
	case item.KindData:
		return fmt.Sprintf("%d field(s)", len(r.Data))
	}
	return string(r.Kind)
}

// detailValue is the expanded text for the detail panel.
func detailValue(r item.Result) string {
	switch r.Kind {
	case item.KindScore:
		return strconv.FormatFloat(r.Score, 'f', 2, 64)
	case item.KindReport:
		if r.Report == nil {
			return "empty report"
		}
		return fmt.Sprintf("%d passed, %d failed of %d", r.Report.Passed, r.Report.Failed, r.Report.Total)
	case item.KindText:
		return clip(r.Text, 60)
	case item.KindFiles:
		names := make([]string, 0, len(r.Files))
		for _, p := range r.Files {
			names = append(names, filepath.Base(p))
		}
		return clip(strings.Join(names, ", "), 60)
	case item.KindTags:
		return clip(strings.Join(r.TagList(), ", "), 60)
	case item.KindData:
		keys := make([]string, 0, len(r.Data))
		for k := range r.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, r.Data[k]))
		}
		return clip(strings.Join(pairs, " "), 80)
	}
	return string(r.Kind)
}

// pad right-pads to width counting display cells, not bytes.
func pad(s string, width int) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}
