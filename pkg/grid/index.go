package grid

import (
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

// Level holds the cell population for one resolution. Cell values are
// indices into the index's item slice, sorted ascending so that iteration
// order never depends on construction order.
type Level struct {
	Resolution int
	Cells      map[CellKey][]int
}

// Index is the immutable multi-resolution spatial grid over one item set.
// Build once per run; all read methods are safe for concurrent use.
type Index struct {
	items       []Item
	bounds      Bounds
	resolutions []int
	levels      map[int]*Level
}

// Build partitions items into cells at every configured resolution.
//
// Binning is axis-aligned with half-open intervals: an item on a cell's
// upper edge belongs to the next cell, except on the bounding box's own
// upper bound where it is clamped into the last cell. Each level is a
// single linear pass over the items; levels are computed in parallel.
//
// An empty item set yields a valid index with empty levels.
func Build(items []Item, cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	idx := &Index{
		items:       items,
		resolutions: append([]int(nil), cfg.Resolutions...),
		levels:      make(map[int]*Level, len(cfg.Resolutions)),
	}

	if b, ok := BoundsOf(items); ok {
		idx.bounds = b.WithMargin(cfg.Margin)
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, res := range idx.resolutions {
		g.Go(func() error {
			level := buildLevel(items, idx.bounds, res)
			mu.Lock()
			idx.levels[res] = level
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return idx, nil
}

// buildLevel bins all items at one resolution.
func buildLevel(items []Item, b Bounds, res int) *Level {
	level := &Level{
		Resolution: res,
		Cells:      make(map[CellKey][]int),
	}
	for i, it := range items {
		key := cellAt(b, res, it.X, it.Y)
		level.Cells[key] = append(level.Cells[key], i)
	}
	// Items arrive in input order; keep each cell sorted for determinism.
	for _, members := range level.Cells {
		sort.Ints(members)
	}
	return level
}

// cellAt computes the cell containing (x, y) at resolution res.
// A degenerate axis collapses to a single cell on that axis.
func cellAt(b Bounds, res int, x, y float64) CellKey {
	return CellKey{
		Col: axisBin(x, b.MinX, b.Width(), res),
		Row: axisBin(y, b.MinY, b.Height(), res),
	}
}

// axisBin maps a coordinate to a cell index in [0, n) along one axis.
func axisBin(v, lo, extent float64, n int) int {
	if extent <= 0 {
		return 0
	}
	i := int((v - lo) / extent * float64(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Items returns the indexed item set.
func (x *Index) Items() []Item { return x.items }

// Bounds returns the (margin-expanded) bounding box used for binning.
func (x *Index) Bounds() Bounds { return x.bounds }

// Resolutions returns the configured resolutions, coarsest first.
func (x *Index) Resolutions() []int { return x.resolutions }

// Finest returns the highest configured resolution, the density reference.
func (x *Index) Finest() int { return x.resolutions[len(x.resolutions)-1] }

// Level returns the cell population at one resolution.
func (x *Index) Level(res int) (*Level, error) {
	l, ok := x.levels[res]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidResolution, "resolution %d not indexed", res)
	}
	return l, nil
}

// CellBounds returns the coordinate bounds of one cell at a resolution.
// Degenerate axes return the full (zero-width) axis range.
func (x *Index) CellBounds(res int, key CellKey) Bounds {
	w := x.bounds.Width() / float64(res)
	h := x.bounds.Height() / float64(res)
	return Bounds{
		MinX: x.bounds.MinX + float64(key.Col)*w,
		MinY: x.bounds.MinY + float64(key.Row)*h,
		MaxX: x.bounds.MinX + float64(key.Col+1)*w,
		MaxY: x.bounds.MinY + float64(key.Row+1)*h,
	}
}

// CellItems returns the indices of the items inside one cell, ascending.
// The returned slice is shared; callers must not mutate it.
func (x *Index) CellItems(res int, key CellKey) []int {
	l, ok := x.levels[res]
	if !ok {
		return nil
	}
	return l.Cells[key]
}
