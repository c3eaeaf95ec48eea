// Package report renders collected grading results as flat tables.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Row is one submission's worth of cells keyed by column name.
type Row struct {
	Index string
	Cells map[string]any
}

// Table accumulates rows with a shared index column. Columns appear in the
// order rows introduce them, sorted within a single row, so output stays
// deterministic without a schema up front.
type Table struct {
	IndexName string
	columns   []string
	seen      map[string]bool
	rows      []Row
}

// NewTable creates an empty table whose first column is indexName.
func NewTable(indexName string) *Table {
	return &Table{
		IndexName: indexName,
		seen:      map[string]bool{},
	}
}

// AddColumns registers columns ahead of any row, fixing their order.
func (t *Table) AddColumns(names ...string) {
	for _, col := range names {
		if t.seen[col] {
			continue
		}
		t.seen[col] = true
		t.columns = append(t.columns, col)
	}
}

// AddRow appends one row, registering any new columns.
func (t *Table) AddRow(index string, cells map[string]any) {
	fresh := make([]string, 0, len(cells))
	for col := range cells {
		if !t.seen[col] {
			fresh = append(fresh, col)
		}
	}
	sort.Strings(fresh)
	for _, col := range fresh {
		t.seen[col] = true
		t.columns = append(t.columns, col)
	}
	copied := make(map[string]any, len(cells))
	for col, v := range cells {
		copied[col] = v
	}
	t.rows = append(t.rows, Row{Index: index, Cells: copied})
}

// Columns returns the value columns in presentation order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns the accumulated rows in insertion order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Len reports the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// WriteOptions controls CSV rendering.
type WriteOptions struct {
	// Fill replaces missing cells. Nil leaves them empty.
	Fill any
	// FloatFormat is a Sprintf verb for float cells, e.g. "%.2f".
	// Empty renders floats at full precision.
	FloatFormat string
}

// WriteCSV renders the table with the index first and columns in
// presentation order.
func (t *Table) WriteCSV(w io.Writer, opts WriteOptions) error {
	cw := csv.NewWriter(w)
	header := append([]string{t.IndexName}, t.columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}
	for _, row := range t.rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Index)
		for _, col := range t.columns {
			v, ok := row.Cells[col]
			if !ok {
				v = opts.Fill
			}
			record = append(record, formatCell(v, opts.FloatFormat))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("report: write row %s: %w", row.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the table to path, creating or truncating the file.
func (t *Table) SaveCSV(path string, opts WriteOptions) error {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf, opts); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

func formatCell(v any, floatFormat string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if floatFormat != "" {
			return fmt.Sprintf(floatFormat, val)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return strings.Join(val, ";")
	default:
		return fmt.Sprintf("%v", val)
	}
}
