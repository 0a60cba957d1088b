package ingest

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

// ReadJSONL reads a newline-delimited JSON point table. Each line is one
// object with "id", "x", "y"; every other key is carried as metadata.
// Rows without an "id" fall back to their "url" as the identifier, which
// matches how the projection stage keys its output.
func ReadJSONL(r io.Reader) (Result, error) {
	scanner := bufio.NewScanner(r)
	// Captions can be long; allow lines up to 4 MiB.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var rows []rawRow
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "line %d: not a JSON object", line)
		}
		rows = append(rows, rowFromObject(line, obj))
	}
	if err := scanner.Err(); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading point table")
	}

	return validate(rows)
}

// rowFromObject maps one decoded JSON object to a raw row.
func rowFromObject(line int, obj map[string]any) rawRow {
	r := rawRow{row: line, meta: grid.Metadata{}}

	for k, v := range obj {
		switch k {
		case FieldID:
			if s, ok := v.(string); ok {
				r.id = s
			}
		case FieldX:
			if f, ok := v.(float64); ok {
				r.x = floatPtr(f)
			}
		case FieldY:
			if f, ok := v.(float64); ok {
				r.y = floatPtr(f)
			}
		default:
			r.meta[k] = v
		}
	}

	// The projection stage keys records by source URL when no explicit
	// identifier column exists.
	if r.id == "" {
		if s, ok := r.meta[FieldURL].(string); ok {
			r.id = s
		}
	}
	if len(r.meta) == 0 {
		r.meta = nil
	}
	return r
}

func readJSONLFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "point table %s", path)
		}
		return Result{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "open point table %s", path)
	}
	defer f.Close()
	return ReadJSONL(f)
}
