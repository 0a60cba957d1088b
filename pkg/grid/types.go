package grid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

// Metadata is the opaque metadata bag attached to an item. The core treats
// it as immutable pass-through; only the exporter reads the display keys.
type Metadata map[string]any

// Metadata keys recognized by the exporter.
const (
	MetaCaption = "caption"
	MetaURL     = "url"
	MetaImage   = "img"
)

// Item is one projected point: a stable identifier, a 2D coordinate
// pre-normalized by the upstream projection stage, and its metadata.
// No component mutates an Item after ingestion.
type Item struct {
	ID   string
	X, Y float64
	Meta Metadata
}

// Caption returns the item's caption metadata, if present.
func (it Item) Caption() string {
	s, _ := it.Meta[MetaCaption].(string)
	return s
}

// URL returns the item's source URL metadata, if present.
func (it Item) URL() string {
	s, _ := it.Meta[MetaURL].(string)
	return s
}

// CellKey identifies a grid cell at one resolution by column and row.
type CellKey struct {
	Col int
	Row int
}

// String encodes the key as "col,row", the form used in exported documents.
func (k CellKey) String() string {
	return fmt.Sprintf("%d,%d", k.Col, k.Row)
}

// ParseCellKey decodes a "col,row" key.
func ParseCellKey(s string) (CellKey, error) {
	col, row, ok := strings.Cut(s, ",")
	if !ok {
		return CellKey{}, errors.New(errors.ErrCodeInvalidFormat, "cell key %q: want col,row", s)
	}
	c, err := strconv.Atoi(col)
	if err != nil {
		return CellKey{}, errors.New(errors.ErrCodeInvalidFormat, "cell key %q: bad column", s)
	}
	r, err := strconv.Atoi(row)
	if err != nil {
		return CellKey{}, errors.New(errors.ErrCodeInvalidFormat, "cell key %q: bad row", s)
	}
	return CellKey{Col: c, Row: r}, nil
}

// Parent returns the enclosing cell at a coarser resolution.
// ratio is fine/coarse (e.g. 2 for 128→64) and must be ≥ 1.
func (k CellKey) Parent(ratio int) CellKey {
	return CellKey{Col: k.Col / ratio, Row: k.Row / ratio}
}

// Bounds is an axis-aligned bounding box over item coordinates.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width returns the X extent. Zero for a degenerate axis.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the Y extent. Zero for a degenerate axis.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// WithMargin expands the bounds by frac of each axis extent on both sides.
// Degenerate axes are left untouched; there is no extent to scale.
func (b Bounds) WithMargin(frac float64) Bounds {
	if frac <= 0 {
		return b
	}
	dx := b.Width() * frac
	dy := b.Height() * frac
	return Bounds{
		MinX: b.MinX - dx,
		MinY: b.MinY - dy,
		MaxX: b.MaxX + dx,
		MaxY: b.MaxY + dy,
	}
}

// BoundsOf computes the tight bounding box of all items.
// The second return is false for an empty item set.
func BoundsOf(items []Item) (Bounds, bool) {
	if len(items) == 0 {
		return Bounds{}, false
	}
	b := Bounds{
		MinX: items[0].X, MaxX: items[0].X,
		MinY: items[0].Y, MaxY: items[0].Y,
	}
	for _, it := range items[1:] {
		b.MinX = min(b.MinX, it.X)
		b.MaxX = max(b.MaxX, it.X)
		b.MinY = min(b.MinY, it.Y)
		b.MaxY = max(b.MaxY, it.Y)
	}
	return b, true
}

// Config is the grid construction configuration. A zero Margin is valid;
// Resolutions must be a strict refinement chain.
type Config struct {
	// Resolutions is the ordered list of grid granularities, coarsest first.
	// Each entry must be a positive integer multiple of the previous one.
	Resolutions []int

	// Margin is the fraction of each axis extent added as padding on both
	// sides of the tight bounding box, so boundary items are not clipped.
	Margin float64
}

// Validate checks the refinement-chain invariant.
func (c Config) Validate() error {
	if len(c.Resolutions) == 0 {
		return errors.New(errors.ErrCodeInvalidResolution, "no resolutions configured")
	}
	if c.Margin < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "margin must be non-negative, got %g", c.Margin)
	}
	prev := 0
	for i, r := range c.Resolutions {
		if r < 1 {
			return errors.New(errors.ErrCodeInvalidResolution, "resolution %d must be positive", r)
		}
		if i > 0 {
			if r <= prev {
				return errors.New(errors.ErrCodeInvalidResolution,
					"resolutions must be strictly increasing: %d after %d", r, prev)
			}
			if r%prev != 0 {
				return errors.New(errors.ErrCodeInvalidResolution,
					"resolution %d is not an integer multiple of %d", r, prev)
			}
		}
		prev = r
	}
	return nil
}

// DefaultResolutions matches the web viewer's three zoom levels.
var DefaultResolutions = []int{64, 128, 256}
