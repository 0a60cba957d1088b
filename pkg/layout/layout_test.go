package layout

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig, false},
		{"floor equals base", Config{BaseSize: 100, FloorSize: 100, Spacing: 10}, false},
		{"explicit fitting pitch", Config{BaseSize: 400, FloorSize: 100, Spacing: 50, Pitch: 200}, false},

		{"zero base", Config{FloorSize: 10}, true},
		{"zero floor", Config{BaseSize: 100}, true},
		{"floor above base", Config{BaseSize: 100, FloorSize: 200}, true},
		{"negative spacing", Config{BaseSize: 100, FloorSize: 10, Spacing: -1}, true},
		{"negative pitch", Config{BaseSize: 100, FloorSize: 10, Pitch: -5}, true},
		{"floor cannot fit pitch", Config{BaseSize: 400, FloorSize: 100, Spacing: 50, Pitch: 120}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidConfig, errors.GetCode(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSizeMonotoneAndBounded(t *testing.T) {
	cfg := DefaultConfig

	assert.Equal(t, cfg.FloorSize, cfg.Size(0))
	assert.Equal(t, cfg.BaseSize, cfg.Size(1))

	prev := -1.0
	for s := 0.0; s <= 1.0; s += 0.05 {
		size := cfg.Size(s)
		assert.GreaterOrEqual(t, size, cfg.FloorSize)
		assert.LessOrEqual(t, size, cfg.BaseSize)
		assert.GreaterOrEqual(t, size, prev, "size must be monotone in score")
		prev = size
	}

	// Out-of-range scores are clamped, not propagated.
	assert.Equal(t, cfg.FloorSize, cfg.Size(-2))
	assert.Equal(t, cfg.BaseSize, cfg.Size(7))
}

func TestSizeShrinksToTightPitch(t *testing.T) {
	// Pitch below BaseSize+Spacing: sizes shrink rather than move.
	cfg := Config{BaseSize: 400, FloorSize: 100, Spacing: 50, Pitch: 300}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 250.0, cfg.Size(1), "densest item shrinks to pitch - spacing")
	assert.Equal(t, 100.0, cfg.Size(0))
}

func TestBuildPlacesAtCellCenters(t *testing.T) {
	cfg := Config{BaseSize: 400, FloorSize: 100, Spacing: 50}
	candidates := []Candidate{
		{ID: "a", Cell: grid.CellKey{Col: 0, Row: 0}, Score: 1},
		{ID: "b", Cell: grid.CellKey{Col: 1, Row: 1}, Score: 0},
	}

	placements, err := Build(candidates, 2, cfg)
	require.NoError(t, err)
	require.Len(t, placements, 2)

	pitch := cfg.EffectivePitch()
	// 2x2 grid centered on the origin: centers at ±pitch/2.
	assert.Equal(t, -pitch/2, placements[0].X)
	assert.Equal(t, -pitch/2, placements[0].Y)
	assert.Equal(t, pitch/2, placements[1].X)
	assert.Equal(t, pitch/2, placements[1].Y)

	assert.Equal(t, cfg.BaseSize, placements[0].Size)
	assert.Equal(t, cfg.FloorSize, placements[1].Size)
}

func TestBuildOutputSortedByID(t *testing.T) {
	candidates := []Candidate{
		{ID: "zeta", Cell: grid.CellKey{Col: 3, Row: 3}, Score: 0.5},
		{ID: "alpha", Cell: grid.CellKey{Col: 1, Row: 1}, Score: 0.5},
		{ID: "mid", Cell: grid.CellKey{Col: 2, Row: 2}, Score: 0.5},
	}

	placements, err := Build(candidates, 4, DefaultConfig)
	require.NoError(t, err)
	require.Len(t, placements, 3)
	assert.Equal(t, "alpha", placements[0].ID)
	assert.Equal(t, "mid", placements[1].ID)
	assert.Equal(t, "zeta", placements[2].ID)
}

func TestBuildRejectsDuplicateCells(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Cell: grid.CellKey{Col: 1, Row: 1}},
		{ID: "b", Cell: grid.CellKey{Col: 1, Row: 1}},
	}
	_, err := Build(candidates, 4, DefaultConfig)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestBuildEmptyCandidates(t *testing.T) {
	placements, err := Build(nil, 64, DefaultConfig)
	require.NoError(t, err)
	assert.Empty(t, placements)
}

func TestLayoutNonOverlapProperty(t *testing.T) {
	// Random occupied cells with random scores: the grid-snapped layout
	// must satisfy the spacing invariant for every pair.
	rng := rand.New(rand.NewSource(42))
	const res = 16

	var candidates []Candidate
	for col := 0; col < res; col++ {
		for row := 0; row < res; row++ {
			if rng.Float64() < 0.4 {
				candidates = append(candidates, Candidate{
					ID:    fmt.Sprintf("c-%02d-%02d", col, row),
					Cell:  grid.CellKey{Col: col, Row: row},
					Score: rng.Float64(),
				})
			}
		}
	}

	for _, cfg := range []Config{
		DefaultConfig,
		{BaseSize: 400, FloorSize: 100, Spacing: 50, Pitch: 300},
		{BaseSize: 200, FloorSize: 200, Spacing: 0},
	} {
		placements, err := Build(candidates, res, cfg)
		require.NoError(t, err)
		require.NoError(t, VerifyNonOverlap(placements, cfg.Spacing))

		// Strong form of the invariant: Euclidean center distance minus
		// the sum of half-sizes is at least the spacing, within Epsilon.
		for i := range placements {
			for j := i + 1; j < len(placements); j++ {
				a, b := placements[i], placements[j]
				dist := math.Hypot(a.X-b.X, a.Y-b.Y)
				gap := dist - (a.Size+b.Size)/2
				assert.GreaterOrEqual(t, gap, cfg.Spacing-Epsilon,
					"%s vs %s", a.ID, b.ID)
			}
		}
	}
}

func TestLayoutStaysWithinBoard(t *testing.T) {
	cfg := DefaultConfig
	const res = 8

	var candidates []Candidate
	for col := 0; col < res; col++ {
		for row := 0; row < res; row++ {
			candidates = append(candidates, Candidate{
				ID:    fmt.Sprintf("c-%02d-%02d", col, row),
				Cell:  grid.CellKey{Col: col, Row: row},
				Score: 1,
			})
		}
	}

	placements, err := Build(candidates, res, cfg)
	require.NoError(t, err)

	halfBoard := float64(res) / 2 * cfg.EffectivePitch()
	for _, p := range placements {
		assert.LessOrEqual(t, math.Abs(p.X)+p.Size/2, halfBoard+Epsilon)
		assert.LessOrEqual(t, math.Abs(p.Y)+p.Size/2, halfBoard+Epsilon)
	}
}

func TestVerifyNonOverlapDetectsViolation(t *testing.T) {
	placements := []Placement{
		{ID: "a", X: 0, Y: 0, Size: 100},
		{ID: "b", X: 60, Y: 0, Size: 100},
	}
	err := VerifyNonOverlap(placements, 10)
	require.Error(t, err)

	// Same pair with enough separation passes.
	placements[1].X = 120
	require.NoError(t, VerifyNonOverlap(placements, 10))
}

func TestSingleItemPlacedAtBaseSize(t *testing.T) {
	// A lone item has density 1.0 by self-normalization and gets BaseSize.
	placements, err := Build([]Candidate{
		{ID: "only", Cell: grid.CellKey{Col: 0, Row: 0}, Score: 1},
	}, 1, DefaultConfig)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	assert.Equal(t, DefaultConfig.BaseSize, placements[0].Size)
	assert.Equal(t, 0.0, placements[0].X, "single-cell grid centers on the origin")
	assert.Equal(t, 0.0, placements[0].Y)
}
