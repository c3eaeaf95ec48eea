// internal/tui/app.go
//
// The grading board. Built on bubbletea's Elm loop: the App model holds
// all state, Update folds messages into it, View renders it to a string.
// Two screens: a picker when several pipeline definitions exist, then the
// board itself, submissions against steps, live from the document store.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docenthq/docent/internal/config"
	"github.com/docenthq/docent/internal/logbook"
	"github.com/docenthq/docent/internal/source"
	"github.com/docenthq/docent/internal/steps"
	"github.com/docenthq/docent/plugins"
)

// appState represents which screen we're on
type appState int

const (
	statePicker appState = iota // Choose a pipeline definition
	stateBoard                  // Watch and trigger grading runs
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithPipelineFile pins the board to a single definition file instead of
// discovering the pipelines directory.
func WithPipelineFile(path string) AppOption {
	return func(a *App) {
		if strings.TrimSpace(path) != "" {
			a.pipelineFile = path
		}
	}
}

// WithRegistry overrides the step registry used to build pipelines.
func WithRegistry(reg *steps.Registry) AppOption {
	return func(a *App) {
		if reg != nil {
			a.registry = reg
		}
	}
}

// WithSourceClient overrides the GitHub client handed to sources.
func WithSourceClient(client source.Client) AppOption {
	return func(a *App) {
		if client != nil {
			a.client = client
		}
	}
}

// pipelineItem is one selectable definition in the picker.
type pipelineItem struct {
	file plugins.DefinitionFile
}

func (i pipelineItem) Title() string { return i.file.Definition.Name }

func (i pipelineItem) Description() string {
	def := i.file.Definition
	desc := strings.TrimSpace(def.Description)
	if desc == "" {
		desc = fmt.Sprintf("%s · %d step(s)", def.Source.Type, len(def.Steps))
	}
	return fmt.Sprintf("%s · %s", desc, filepath.Base(i.file.Path))
}

func (i pipelineItem) FilterValue() string { return i.file.Definition.Name }

// App is the root model. It owns the project config, the shared logbook,
// the step registry, and whichever screen is active.
type App struct {
	state  appState
	config *config.Config
	book   *logbook.Logbook

	registry     *steps.Registry
	client       source.Client
	pipelineFile string

	files  []plugins.DefinitionFile
	picker list.Model
	board  *boardView

	statusMsg string
	width     int
	height    int
}

// NewApp loads the project, discovers pipeline definitions, and prepares
// the first screen. A single definition skips the picker.
func NewApp(projectDir string, opts ...AppOption) (*App, error) {
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	book, err := logbook.ForProject(projectDir)
	if err != nil {
		return nil, err
	}
	app := &App{
		state:  statePicker,
		config: cfg,
		book:   book,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.registry == nil {
		app.registry = steps.DefaultRegistry(book)
		if err := plugins.LoadHelperDir(cfg.PluginsDir(), app.registry); err != nil {
			return nil, err
		}
	}

	files, err := app.loadDefinitions()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("tui: no pipeline definitions under %s", cfg.PipelinesDir())
	}
	app.files = files

	items := make([]list.Item, 0, len(files))
	for _, file := range files {
		items = append(items, pipelineItem{file: file})
	}
	picker := list.New(items, list.NewDefaultDelegate(), 0, 0)
	picker.Title = "Select Pipeline"
	picker.SetShowStatusBar(false)
	picker.SetFilteringEnabled(false)
	app.picker = picker

	if len(files) == 1 {
		board, err := newBoardView(app, files[0])
		if err != nil {
			return nil, err
		}
		app.board = board
		app.state = stateBoard
	}
	return app, nil
}

// Run opens the grading board and blocks until the user quits.
func Run(projectDir string, opts ...AppOption) error {
	app, err := NewApp(projectDir, opts...)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

func (a *App) loadDefinitions() ([]plugins.DefinitionFile, error) {
	if a.pipelineFile != "" {
		return plugins.Load(a.pipelineFile)
	}
	return plugins.Discover(a.config.PipelinesDir())
}

func (a *App) Init() tea.Cmd {
	if a.state == stateBoard && a.board != nil {
		return a.board.Init()
	}
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		a.picker.SetSize(max(20, m.Width-6), max(10, m.Height-12))
		if a.board != nil {
			a.board.resize(m.Width, m.Height)
		}
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	}
	if a.state == stateBoard && a.board != nil {
		return a, a.board.Update(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit
	}
	if a.state == stateBoard {
		if msg.String() == "esc" {
			if len(a.files) > 1 {
				a.state = statePicker
				a.board = nil
				return a, nil
			}
			return a, tea.Quit
		}
		if a.board != nil {
			return a, a.board.Update(msg)
		}
		return a, nil
	}
	switch msg.String() {
	case "enter":
		selected, ok := a.picker.SelectedItem().(pipelineItem)
		if !ok {
			return a, nil
		}
		return a, a.openBoard(selected.file)
	case "esc":
		return a, tea.Quit
	}
	var cmd tea.Cmd
	a.picker, cmd = a.picker.Update(msg)
	return a, cmd
}

func (a *App) openBoard(file plugins.DefinitionFile) tea.Cmd {
	board, err := newBoardView(a, file)
	if err != nil {
		a.statusMsg = fmt.Sprintf("Cannot open %s: %v", file.Definition.Name, err)
		a.book.Error("board: %v", err)
		return nil
	}
	board.resize(a.width, a.height)
	a.board = board
	a.state = stateBoard
	a.statusMsg = ""
	return board.Init()
}

func (a *App) View() string {
	if a.state == stateBoard {
		if a.board != nil {
			return a.board.View()
		}
		return "Opening board..."
	}
	return a.renderPicker()
}

func (a *App) renderPicker() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("✎ DOCENT")
	view := a.picker.View()
	if strings.TrimSpace(view) == "" {
		view = "No pipelines available"
	}
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render("Enter → open board    q → quit")
	sections := []string{header, view, hint}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.statusMsg != "" {
		footer := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			Render(a.statusMsg)
		sections = append(sections, footer)
	}
	return strings.Join(sections, "\n")
}

func (a *App) renderLogPanel() string {
	if a.book == nil {
		return ""
	}
	lines := a.book.Tail(8)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.book.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("LOG · %s", fileName))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
