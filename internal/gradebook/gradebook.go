// Package gradebook persists collected grades in a DuckDB database so
// assignments accumulate across runs and export as one spreadsheet.
package gradebook

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/docenthq/docent/internal/pipeline"
	"github.com/docenthq/docent/internal/report"
)

// Student identifies one enrolled student.
type Student struct {
	ID    string
	Name  string
	Email string
}

// Gradebook wraps the grades database.
type Gradebook struct {
	db *sql.DB
}

// Open opens (creating if needed) the gradebook at path.
func Open(path string) (*Gradebook, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("gradebook: open %s: %w", path, err)
	}
	g := &Gradebook{db: db}
	if err := g.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the database handle.
func (g *Gradebook) Close() error {
	return g.db.Close()
}

func (g *Gradebook) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id VARCHAR PRIMARY KEY,
			name VARCHAR,
			email VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS grades (
			student_id VARCHAR NOT NULL,
			assignment VARCHAR NOT NULL,
			grade DOUBLE NOT NULL,
			updated_at TIMESTAMP,
			PRIMARY KEY (student_id, assignment)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("gradebook: create schema: %w", err)
		}
	}
	return nil
}

// SaveStudent upserts one student record.
func (g *Gradebook) SaveStudent(ctx context.Context, s Student) error {
	query := `
	INSERT INTO students (id, name, email)
	VALUES (?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		email = excluded.email;
	`
	if _, err := g.db.ExecContext(ctx, query, s.ID, s.Name, s.Email); err != nil {
		return fmt.Errorf("gradebook: save student %s: %w", s.ID, err)
	}
	return nil
}

// SaveGrade upserts one grade.
func (g *Gradebook) SaveGrade(ctx context.Context, studentID, assignment string, grade float64) error {
	query := `
	INSERT INTO grades (student_id, assignment, grade, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (student_id, assignment) DO UPDATE SET
		grade = excluded.grade,
		updated_at = excluded.updated_at;
	`
	if _, err := g.db.ExecContext(ctx, query, studentID, assignment, grade, time.Now().UTC()); err != nil {
		return fmt.Errorf("gradebook: save grade %s/%s: %w", studentID, assignment, err)
	}
	return nil
}

// SaveTable ingests a collected table under the assignment name, reading the
// numeric grade from column for every row.
func (g *Gradebook) SaveTable(ctx context.Context, assignment string, tbl *report.Table, column string) error {
	if column == "" {
		column = "grade"
	}
	for _, row := range tbl.Rows() {
		cell, ok := row.Cells[column]
		if !ok {
			return fmt.Errorf("gradebook: row %s has no column %s: %w", row.Index, column, pipeline.ErrBadConfig)
		}
		grade, ok := asFloat(cell)
		if !ok {
			return fmt.Errorf("gradebook: row %s column %s is %T, not numeric: %w", row.Index, column, cell, pipeline.ErrBadConfig)
		}
		if err := g.SaveGrade(ctx, row.Index, assignment, grade); err != nil {
			return err
		}
	}
	return nil
}

// Assignments lists the recorded assignment names in sorted order.
func (g *Gradebook) Assignments(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT DISTINCT assignment FROM grades ORDER BY assignment`)
	if err != nil {
		return nil, fmt.Errorf("gradebook: list assignments: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ExportOptions shape the exported spreadsheet.
type ExportOptions struct {
	// Sort orders rows by "id" (default) or by a grade column.
	Sort string
	// Normalize multiplies every grade, e.g. 10 rescales 0..1 to 0..10.
	// Zero leaves grades as stored.
	Normalize float64
	// Simple drops the name and email columns.
	Simple bool
}

// Export reads the whole gradebook into a table, one row per student with
// one column per assignment.
func (g *Gradebook) Export(ctx context.Context, opts ExportOptions) (*report.Table, error) {
	assignments, err := g.Assignments(ctx)
	if err != nil {
		return nil, err
	}

	query := `
	SELECT g.student_id, s.name, s.email, g.assignment, g.grade
	FROM grades g
	LEFT JOIN students s ON s.id = g.student_id
	ORDER BY g.student_id, g.assignment
	`
	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("gradebook: read grades: %w", err)
	}
	defer rows.Close()

	byID := map[string]*exportRow{}
	var order []string
	for rows.Next() {
		var (
			id, assignment string
			name, email    sql.NullString
			grade          float64
		)
		if err := rows.Scan(&id, &name, &email, &assignment, &grade); err != nil {
			return nil, err
		}
		row, ok := byID[id]
		if !ok {
			row = &exportRow{ID: id, Name: name.String, Email: email.String, Grades: map[string]float64{}}
			byID[id] = row
			order = append(order, id)
		}
		row.Grades[assignment] = grade
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	students := make([]exportRow, 0, len(order))
	for _, id := range order {
		students = append(students, *byID[id])
	}
	return buildTable(students, assignments, opts)
}

type exportRow struct {
	ID     string
	Name   string
	Email  string
	Grades map[string]float64
}

// buildTable assembles, normalizes and sorts the export rows.
func buildTable(students []exportRow, assignments []string, opts ExportOptions) (*report.Table, error) {
	sortCol := opts.Sort
	if sortCol == "" {
		sortCol = "id"
	}
	if sortCol != "id" && !contains(assignments, sortCol) {
		return nil, fmt.Errorf("gradebook: invalid sort column %q (columns must be one of %s, or id): %w",
			sortCol, joinOrNone(assignments), pipeline.ErrBadConfig)
	}

	if sortCol == "id" {
		sort.SliceStable(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	} else {
		sort.SliceStable(students, func(i, j int) bool {
			return students[i].Grades[sortCol] < students[j].Grades[sortCol]
		})
	}

	tbl := report.NewTable("id")
	if !opts.Simple {
		tbl.AddColumns("name", "email")
	}
	tbl.AddColumns(assignments...)
	for _, s := range students {
		cells := map[string]any{}
		if !opts.Simple {
			cells["name"] = s.Name
			cells["email"] = s.Email
		}
		for _, assignment := range assignments {
			grade, ok := s.Grades[assignment]
			if !ok {
				cells[assignment] = nil
				continue
			}
			if opts.Normalize != 0 {
				grade *= opts.Normalize
			}
			cells[assignment] = grade
		}
		tbl.AddRow(s.ID, cells)
	}
	return tbl, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(list []string, want string) bool {
	for _, elem := range list {
		if elem == want {
			return true
		}
	}
	return false
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	out := list[0]
	for _, elem := range list[1:] {
		out += ", " + elem
	}
	return out
}
