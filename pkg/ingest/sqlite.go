package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

// DefaultTable is the table ReadFile reads when dispatching on a SQLite
// extension. The projection stage writes its output under this name.
const DefaultTable = "points"

// ReadSQLite reads a point table from a SQLite database. The table must
// carry id, x and y columns; every other column is carried as metadata.
// NULL coordinates count as missing (skipped), like empty CSV fields.
func ReadSQLite(ctx context.Context, path, table string) (Result, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{}, errors.New(errors.ErrCodeFileNotFound, "point table %s does not exist", path)
	}
	if err := validTableName(table); err != nil {
		return Result{}, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "open point table %s", path)
	}
	defer db.Close()

	// Table names cannot be bound as parameters; validated above.
	query := fmt.Sprintf("SELECT * FROM %q ORDER BY rowid", table)
	dbRows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "query table %q in %s", table, path)
	}
	defer dbRows.Close()

	columns, err := dbRows.Columns()
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading columns of %q", table)
	}
	cols := make(map[string]int, len(columns))
	for i, name := range columns {
		cols[strings.ToLower(name)] = i
	}
	for _, required := range []string{FieldID, FieldX, FieldY} {
		if _, ok := cols[required]; !ok {
			return Result{}, errors.New(errors.ErrCodeInvalidFormat,
				"table %q missing required column %q", table, required)
		}
	}

	var rows []rawRow
	line := 0
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for dbRows.Next() {
		if err := dbRows.Scan(ptrs...); err != nil {
			return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "scanning row %d of %q", line+1, table)
		}
		line++
		rows = append(rows, rowFromValues(line, columns, values))
	}
	if err := dbRows.Err(); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading table %q", table)
	}

	return validate(rows)
}

// rowFromValues maps one scanned SQLite row to a raw row.
func rowFromValues(line int, columns []string, values []any) rawRow {
	r := rawRow{row: line, meta: grid.Metadata{}}

	for i, name := range columns {
		v := values[i]
		if v == nil {
			continue
		}
		switch strings.ToLower(name) {
		case FieldID:
			r.id = asString(v)
		case FieldX:
			r.x = asFloat(v)
		case FieldY:
			r.y = asFloat(v)
		default:
			r.meta[strings.ToLower(name)] = asString(v)
		}
	}

	if len(r.meta) == 0 {
		r.meta = nil
	}
	return r
}

// asString renders a driver value as text. The sqlite driver hands back
// int64, float64, string or []byte depending on column affinity.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// asFloat converts a driver value to a coordinate. Text that does not
// parse yields nil, treated as missing by the validator.
func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return floatPtr(t)
	case int64:
		return floatPtr(float64(t))
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return floatPtr(f)
		}
	case []byte:
		if f, err := strconv.ParseFloat(string(t), 64); err == nil {
			return floatPtr(f)
		}
	}
	return nil
}

// validTableName rejects names that would break out of the quoted
// identifier in the query.
func validTableName(name string) error {
	if name == "" || strings.ContainsAny(name, "\"`;") {
		return errors.New(errors.ErrCodeInvalidInput, "invalid table name %q", name)
	}
	return nil
}
