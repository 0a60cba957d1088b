package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/layout"
)

const (
	// DefaultExamplesPerCell bounds the example list exported per cell.
	DefaultExamplesPerCell = 100

	// DefaultMaxDocumentMB is the size above which a document splits
	// into parts. Kept below what the viewer will fetch in one request.
	DefaultMaxDocumentMB = 50
)

// Options configures an Exporter.
type Options struct {
	// Dir is the output directory; created if missing.
	Dir string

	// MaxDocumentMB splits documents larger than this many megabytes.
	// Zero means DefaultMaxDocumentMB.
	MaxDocumentMB int

	// ExamplesPerCell caps the per-cell example list. Zero means
	// DefaultExamplesPerCell; negative disables examples entirely.
	ExamplesPerCell int

	// Compress writes grid documents zstd-compressed as .json.zst.
	// The manifest stays plain JSON so it is always inspectable.
	Compress bool
}

func (o Options) maxBytes() int {
	mb := o.MaxDocumentMB
	if mb <= 0 {
		mb = DefaultMaxDocumentMB
	}
	return mb * 1024 * 1024
}

func (o Options) examplesPerCell() int {
	switch {
	case o.ExamplesPerCell < 0:
		return 0
	case o.ExamplesPerCell == 0:
		return DefaultExamplesPerCell
	default:
		return o.ExamplesPerCell
	}
}

// Exporter writes the run's documents under one output directory.
type Exporter struct {
	opts Options
}

// New validates the options and prepares the output directory.
func New(opts Options) (*Exporter, error) {
	if opts.Dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "export directory must be set")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "creating export directory %s", opts.Dir)
	}
	return &Exporter{opts: opts}, nil
}

// Example is one of a cell's nearest items, exported so the viewer can
// show what a cell contains beyond its representative.
type Example struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
	URL     string `json:"url,omitempty"`
}

// CellEntry is one exported grid cell.
type CellEntry struct {
	ID        string            `json:"id"`
	Count     int               `json:"count"`
	Caption   string            `json:"caption,omitempty"`
	Image     string            `json:"img,omitempty"`
	URL       string            `json:"url,omitempty"`
	Examples  []Example         `json:"examples,omitempty"`
	Placement *layout.Placement `json:"placement,omitempty"`
}

// Document is one resolution's cells, keyed "col,row".
type Document map[string]*CellEntry

// GridFileName names the document for one resolution.
func GridFileName(res int) string {
	return fmt.Sprintf("grid_%d.json", res)
}

// BuildDocument assembles the export document for one resolution from
// the selected representatives: population count, display metadata, and
// up to ExamplesPerCell example items ordered by distance to the
// representative. placements, when non-nil, attaches the physical
// placement computed at this resolution to each cell. images, when
// non-nil, maps cells to their thumbnail paths; a mapped path replaces
// any img carried in the representative's metadata, so viewers always
// load the thumbnail actually written for the cell.
func (e *Exporter) BuildDocument(idx *grid.Index, res int, reps map[grid.CellKey]grid.Representative, placements map[grid.CellKey]layout.Placement, images map[grid.CellKey]string) (Document, error) {
	perCell := e.opts.examplesPerCell()
	items := idx.Items()

	doc := make(Document, len(reps))
	for key, rep := range reps {
		item := items[rep.ItemIdx]
		entry := &CellEntry{
			ID:      rep.ID,
			Count:   rep.Count,
			Caption: item.Caption(),
			URL:     item.URL(),
		}
		if img, ok := images[key]; ok {
			entry.Image = img
		} else if img, ok := item.Meta[grid.MetaImage].(string); ok {
			entry.Image = img
		}

		if perCell > 0 {
			neighbors := idx.Neighbors(res, key, item)
			if len(neighbors) > perCell {
				neighbors = neighbors[:perCell]
			}
			entry.Examples = make([]Example, 0, len(neighbors))
			for _, n := range neighbors {
				ex := items[n]
				entry.Examples = append(entry.Examples, Example{
					ID:      ex.ID,
					Caption: ex.Caption(),
					URL:     ex.URL(),
				})
			}
		}

		if placements != nil {
			if p, ok := placements[key]; ok {
				placed := p
				entry.Placement = &placed
			}
		}

		doc[key.String()] = entry
	}
	return doc, nil
}

// WriteDocument marshals a document and writes it under the given base
// name ("grid_256.json"), splitting into _partN files when it exceeds
// the size limit and compressing when configured. Returns the file
// names written, relative to the export directory.
func (e *Exporter) WriteDocument(ctx context.Context, base string, doc Document) ([]string, error) {
	full, err := marshalDocument(doc)
	if err != nil {
		return nil, err
	}

	if len(full) <= e.opts.maxBytes() {
		name, err := e.writeJSON(ctx, base, full)
		if err != nil {
			return nil, err
		}
		return []string{name}, nil
	}

	parts := splitDocument(doc, e.opts.maxBytes())
	names := make([]string, 0, len(parts))
	for i, part := range parts {
		data, err := marshalDocument(part)
		if err != nil {
			return nil, err
		}
		name, err := e.writeJSON(ctx, partName(base, i+1), data)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// PlacementsDocument pairs the placement list with the layout
// configuration that produced it, so the board uploader positions and
// sizes items exactly as the layout engine computed them.
type PlacementsDocument struct {
	Layout     LayoutEcho         `json:"layout"`
	Placements []layout.Placement `json:"placements"`
}

// LayoutEcho is the layout configuration as serialized into the
// placements document.
type LayoutEcho struct {
	BaseSize  float64 `json:"base_size"`
	FloorSize float64 `json:"floor_size"`
	Spacing   float64 `json:"spacing"`
	Pitch     float64 `json:"pitch"`
}

// WritePlacements writes the placement list, sorted by id, with the
// layout configuration echoed. Returns the file name written.
func (e *Exporter) WritePlacements(ctx context.Context, placements []layout.Placement, cfg layout.Config) (string, error) {
	sorted := append([]layout.Placement(nil), placements...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	doc := PlacementsDocument{
		Layout: LayoutEcho{
			BaseSize:  cfg.BaseSize,
			FloorSize: cfg.FloorSize,
			Spacing:   cfg.Spacing,
			Pitch:     cfg.EffectivePitch(),
		},
		Placements: sorted,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, err, "marshaling placements")
	}
	return e.writeJSON(ctx, "placements.json", data)
}

func marshalDocument(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "marshaling document")
	}
	return data, nil
}

// splitDocument partitions a document along its sorted keys so each
// part marshals to at most limit bytes (best effort; a single oversized
// entry still gets its own part).
func splitDocument(doc Document, limit int) []Document {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []Document
	current := Document{}
	size := 2 // braces
	for _, k := range keys {
		entry, _ := json.Marshal(doc[k])
		// `"key":entry,` overhead per member.
		entrySize := len(k) + len(entry) + 4
		if len(current) > 0 && size+entrySize > limit {
			parts = append(parts, current)
			current = Document{}
			size = 2
		}
		current[k] = doc[k]
		size += entrySize
	}
	if len(current) > 0 {
		parts = append(parts, current)
	}
	return parts
}

// partName turns "grid_256.json" into "grid_256_part1.json".
func partName(base string, n int) string {
	const suffix = ".json"
	stem := base
	if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
		stem = base[:len(base)-len(suffix)]
	}
	return fmt.Sprintf("%s_part%d%s", stem, n, suffix)
}
