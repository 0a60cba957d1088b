// Package ingest reads the projected-point table produced by the upstream
// projection stage and validates it into the core's item set.
//
// The table format is not fixed by the core: JSONL, CSV, and SQLite
// sources are supported, dispatched by file extension. Whatever the
// format, the ingestion boundary enforces the same contract:
//
//   - coordinates must be finite numbers
//   - identifiers must be unique and well-formed
//   - rows with missing coordinates are skipped and reported, not fatal
//
// Rows that are present but invalid (NaN coordinates, duplicate or
// malformed identifiers) abort the run with an error enumerating the
// offending rows, so a bad input file is diagnosed in one pass.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

// Field names recognized in every source format. Anything else in a row
// is carried as opaque metadata.
const (
	FieldID      = "id"
	FieldX       = "x"
	FieldY       = "y"
	FieldCaption = "caption"
	FieldURL     = "url"
)

// maxReportedRows bounds how many offending rows one error enumerates.
const maxReportedRows = 20

// RowIssue describes one skipped or rejected input row.
type RowIssue struct {
	Row    int    // 1-based row number in the source
	ID     string // identifier if one was present
	Reason string
}

func (r RowIssue) String() string {
	if r.ID != "" {
		return fmt.Sprintf("row %d (%s): %s", r.Row, r.ID, r.Reason)
	}
	return fmt.Sprintf("row %d: %s", r.Row, r.Reason)
}

// Result is the validated outcome of reading one point table.
type Result struct {
	Items []grid.Item

	// Skipped lists rows dropped for missing coordinates. Callers log
	// these; they do not fail the run.
	Skipped []RowIssue
}

// ReadFile reads a point table, dispatching on the file extension:
// .jsonl/.ndjson, .csv, and .db/.sqlite/.sqlite3 are recognized.
func ReadFile(ctx context.Context, path string) (Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return readJSONLFile(path)
	case ".csv":
		return readCSVFile(path)
	case ".db", ".sqlite", ".sqlite3":
		return ReadSQLite(ctx, path, DefaultTable)
	default:
		return Result{}, errors.New(errors.ErrCodeInvalidFormat,
			"unsupported point table format %q (want .jsonl, .csv, or .sqlite)", filepath.Ext(path))
	}
}

// rawRow is one row as produced by a format reader, before validation.
type rawRow struct {
	row  int // 1-based source row number
	id   string
	x, y *float64 // nil when the field is missing
	meta grid.Metadata
}

// validate applies the ingestion contract to raw rows.
func validate(rows []rawRow) (Result, error) {
	var res Result
	var invalid []RowIssue
	seen := make(map[string]int, len(rows))

	for _, r := range rows {
		// Missing coordinates: skip, report, continue.
		if r.x == nil || r.y == nil {
			res.Skipped = append(res.Skipped, RowIssue{Row: r.row, ID: r.id, Reason: "missing coordinate"})
			continue
		}

		if err := errors.ValidateItemID(r.id); err != nil {
			invalid = append(invalid, RowIssue{Row: r.row, ID: r.id, Reason: errors.UserMessage(err)})
			continue
		}
		if err := errors.ValidateCoordinate(*r.x); err != nil {
			invalid = append(invalid, RowIssue{Row: r.row, ID: r.id, Reason: "x: " + errors.UserMessage(err)})
			continue
		}
		if err := errors.ValidateCoordinate(*r.y); err != nil {
			invalid = append(invalid, RowIssue{Row: r.row, ID: r.id, Reason: "y: " + errors.UserMessage(err)})
			continue
		}
		if first, dup := seen[r.id]; dup {
			invalid = append(invalid, RowIssue{
				Row: r.row, ID: r.id,
				Reason: fmt.Sprintf("duplicate identifier (first seen at row %d)", first),
			})
			continue
		}
		seen[r.id] = r.row

		res.Items = append(res.Items, grid.Item{ID: r.id, X: *r.x, Y: *r.y, Meta: r.meta})
	}

	if len(invalid) > 0 {
		return Result{}, invalidRowsError(invalid)
	}
	return res, nil
}

// invalidRowsError builds one InputValidationError enumerating the
// offending rows (capped so a corrupt file doesn't produce megabytes).
func invalidRowsError(issues []RowIssue) error {
	shown := issues
	suffix := ""
	if len(shown) > maxReportedRows {
		shown = shown[:maxReportedRows]
		suffix = fmt.Sprintf(" (and %d more)", len(issues)-maxReportedRows)
	}
	lines := make([]string, len(shown))
	for i, is := range shown {
		lines[i] = is.String()
	}
	return errors.New(errors.ErrCodeInvalidInput,
		"%d invalid input rows: %s%s", len(issues), strings.Join(lines, "; "), suffix)
}

// floatPtr converts a parsed field into a coordinate pointer.
func floatPtr(v float64) *float64 { return &v }
