// Package layout converts grid and density information into collision-free
// physical placements for a board or viewer surface.
//
// The engine is deliberately not a 2D packer: every item is pinned to its
// grid cell's center, which is collision-free by construction because cells
// are disjoint. Density only scales size between a configured floor and the
// base size, so crowded regions read larger without anything ever moving.
// When the scaled size would not fit the cell pitch, the size is shrunk,
// never the position — and if even the floor size cannot fit, the
// configuration is rejected before any computation.
package layout

import (
	"sort"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

// Epsilon is the numerical tolerance allowed when verifying the
// non-overlap property of a finished layout.
const Epsilon = 1e-9

// Config holds the physical layout parameters, in board units (pixels).
type Config struct {
	// BaseSize is the size assigned to the single densest item (score 1.0).
	BaseSize float64

	// FloorSize is the minimum size, so sparse items never vanish.
	FloorSize float64

	// Spacing is the minimum gap enforced between adjacent bounding boxes.
	Spacing float64

	// Pitch is the center-to-center distance between adjacent cells.
	// Zero means derived: BaseSize + Spacing, which always fits.
	// An explicit smaller pitch shrinks sizes rather than moving items.
	Pitch float64
}

// DefaultConfig mirrors the board uploader's defaults.
var DefaultConfig = Config{
	BaseSize:  400,
	FloorSize: 100,
	Spacing:   50,
}

// EffectivePitch returns the configured pitch, or the derived one.
func (c Config) EffectivePitch() float64 {
	if c.Pitch > 0 {
		return c.Pitch
	}
	return c.BaseSize + c.Spacing
}

// maxSize is the largest size that fits the pitch with the spacing gap.
func (c Config) maxSize() float64 {
	return c.EffectivePitch() - c.Spacing
}

// Validate rejects configurations that cannot produce a legal layout.
// Errors here are ConfigurationErrors: surfaced before any computation.
func (c Config) Validate() error {
	if c.BaseSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "base size must be positive, got %g", c.BaseSize)
	}
	if c.FloorSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "floor size must be positive, got %g", c.FloorSize)
	}
	if c.FloorSize > c.BaseSize {
		return errors.New(errors.ErrCodeInvalidConfig,
			"floor size %g exceeds base size %g", c.FloorSize, c.BaseSize)
	}
	if c.Spacing < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "spacing must be non-negative, got %g", c.Spacing)
	}
	if c.Pitch < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "pitch must be non-negative, got %g", c.Pitch)
	}
	// Even the floor size must fit the pitch; otherwise no amount of
	// shrinking produces a legal layout.
	if c.FloorSize > c.maxSize() {
		return errors.New(errors.ErrCodeInvalidConfig,
			"floor size %g plus spacing %g exceeds pitch %g: even the smallest item would overlap",
			c.FloorSize, c.Spacing, c.EffectivePitch())
	}
	return nil
}

// Size maps a density score in [0,1] to a physical size, monotonically.
// Sizes that would not fit the pitch are shrunk (never repositioned).
func (c Config) Size(score float64) float64 {
	score = min(max(score, 0), 1)
	s := c.FloorSize + score*(c.BaseSize-c.FloorSize)
	return min(s, c.maxSize())
}

// Placement is the final physical assignment for one item. Placements are
// derived views over the grid hierarchy, produced fresh per run and never
// persisted as source of truth.
type Placement struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Size    float64 `json:"size"`
	Caption string  `json:"caption,omitempty"`
	Image   string  `json:"img,omitempty"`
	URL     string  `json:"url,omitempty"`
}

// Candidate is one item to place: a cell at the layout resolution and the
// density score that drives its size.
type Candidate struct {
	ID      string
	Cell    grid.CellKey
	Score   float64
	Caption string
	Image   string
	URL     string
}

// Build places every candidate at its cell center, centered on the origin,
// with size scaled by density. Output is sorted by ID so identical input
// always serializes identically.
//
// resolution is the grid granularity the candidates were selected at; the
// map spans resolution*pitch board units per axis, centered on the origin
// like the collaborative board's coordinate system.
func Build(candidates []Candidate, resolution int, cfg Config) ([]Placement, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if resolution < 1 {
		return nil, errors.New(errors.ErrCodeInvalidResolution, "resolution %d must be positive", resolution)
	}

	pitch := cfg.EffectivePitch()
	half := float64(resolution) / 2

	placements := make([]Placement, 0, len(candidates))
	seen := make(map[grid.CellKey]string, len(candidates))
	for _, c := range candidates {
		if prev, dup := seen[c.Cell]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"cell %s placed twice (%s and %s): candidates must be one per cell", c.Cell, prev, c.ID)
		}
		seen[c.Cell] = c.ID

		placements = append(placements, Placement{
			ID:      c.ID,
			X:       (float64(c.Cell.Col) + 0.5 - half) * pitch,
			Y:       (float64(c.Cell.Row) + 0.5 - half) * pitch,
			Size:    cfg.Size(c.Score),
			Caption: c.Caption,
			Image:   c.Image,
			URL:     c.URL,
		})
	}

	sort.Slice(placements, func(i, j int) bool { return placements[i].ID < placements[j].ID })
	return placements, nil
}

// VerifyNonOverlap checks the layout invariant: for every pair, the
// bounding boxes must be separated by at least spacing (within Epsilon)
// on at least one axis. Returns the first violating pair, if any.
//
// Quadratic; intended for tests and for --verify runs on layout output.
func VerifyNonOverlap(placements []Placement, spacing float64) error {
	for i := 0; i < len(placements); i++ {
		for j := i + 1; j < len(placements); j++ {
			a, b := placements[i], placements[j]
			gapX := abs(a.X-b.X) - (a.Size+b.Size)/2
			gapY := abs(a.Y-b.Y) - (a.Size+b.Size)/2
			if gapX < spacing-Epsilon && gapY < spacing-Epsilon {
				return errors.New(errors.ErrCodeInternal,
					"placements %s and %s overlap: gaps (%g, %g) below spacing %g",
					a.ID, b.ID, gapX, gapY, spacing)
			}
		}
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
