package ingest

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

// ReadCSV reads a comma-separated point table. The first record is a
// header naming the columns; "id", "x" and "y" are required columns,
// every other column is carried as string metadata. Empty coordinate
// fields count as missing (skipped), non-numeric ones as invalid (fatal).
func ReadCSV(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are reported per-row below

	header, err := cr.Read()
	if err == io.EOF {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading CSV header")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{FieldID, FieldX, FieldY} {
		if _, ok := cols[required]; !ok {
			return Result{}, errors.New(errors.ErrCodeInvalidFormat,
				"CSV header missing required column %q", required)
		}
	}

	var rows []rawRow
	line := 1 // header consumed
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading CSV row %d", line+1)
		}
		line++
		rows = append(rows, rowFromRecord(line, header, cols, record))
	}

	return validate(rows)
}

// rowFromRecord maps one CSV record to a raw row.
func rowFromRecord(line int, header []string, cols map[string]int, record []string) rawRow {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	r := rawRow{row: line, meta: grid.Metadata{}}
	r.id, _ = field(FieldID)

	// Empty numeric fields count as missing; unparseable ones as NaN so
	// the validator reports them as invalid rather than silently skipping.
	parse := func(name string) *float64 {
		s, ok := field(name)
		if !ok || s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return floatPtr(math.NaN())
		}
		return floatPtr(f)
	}
	r.x = parse(FieldX)
	r.y = parse(FieldY)

	for i, name := range header {
		key := strings.TrimSpace(strings.ToLower(name))
		if key == FieldID || key == FieldX || key == FieldY {
			continue
		}
		if i < len(record) && record[i] != "" {
			r.meta[key] = record[i]
		}
	}
	if len(r.meta) == 0 {
		r.meta = nil
	}
	return r
}

func readCSVFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "point table %s", path)
		}
		return Result{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "open point table %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}
