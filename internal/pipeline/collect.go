package pipeline

import (
	"context"
	"fmt"

	"github.com/docenthq/docent/internal/item"
	"github.com/docenthq/docent/internal/report"
)

// CollectOptions shape the table built from recorded results.
type CollectOptions struct {
	// Index names the step whose recorded result keys each row.
	Index string
	// Data names the step whose recorded result fills the row.
	Data string
	// Column receives scalar data results. Defaults to "grade".
	Column string
	// Fill replaces cells a row is missing, e.g. competency tags another
	// submission earned.
	Fill any
	// SaveTo writes the table as CSV when non-empty.
	SaveTo string
}

// Collect rebuilds a flat table from the source's submissions: one row per
// submission keyed by the index step's result. Mapping-shaped data results
// spread into one column per field; scalar results land under Column.
// Submissions missing either step fail the collection, since reporting on
// half-graded work silently would hide pipeline gaps.
func (p *Pipeline) Collect(ctx context.Context, opts CollectOptions) (*report.Table, error) {
	if p.source == nil {
		return nil, ErrNoSource
	}
	if opts.Index == "" || opts.Data == "" {
		return nil, fmt.Errorf("pipeline: collect needs index and data steps: %w", ErrBadConfig)
	}
	column := opts.Column
	if column == "" {
		column = "grade"
	}

	entries, err := p.source.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: collect: %w", err)
	}

	tbl := report.NewTable(opts.Index)
	for _, e := range entries {
		idxRes, ok := e.Item.Steps[opts.Index]
		if !ok {
			return nil, fmt.Errorf("pipeline: submission %s has no %s result: %w",
				e.Key, opts.Index, ErrMissingDependency)
		}
		idx, ok := item.Stringify(idxRes.Value())
		if !ok {
			return nil, fmt.Errorf("pipeline: %s result for %s cannot index a row: %w",
				opts.Index, e.Key, ErrBadConfig)
		}

		dataRes, ok := e.Item.Steps[opts.Data]
		if !ok {
			return nil, fmt.Errorf("pipeline: submission %s has no %s result: %w",
				e.Key, opts.Data, ErrMissingDependency)
		}
		cells, ok := dataRes.Spread()
		if !ok {
			cells = map[string]any{column: dataRes.Value()}
		}
		tbl.AddRow(idx, cells)
	}

	if opts.SaveTo != "" {
		if err := tbl.SaveCSV(opts.SaveTo, report.WriteOptions{Fill: opts.Fill}); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
