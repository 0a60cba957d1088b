package grid

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

func testItems(n int, seed int64) []Item {
	rng := rand.New(rand.NewSource(seed))
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ID: fmt.Sprintf("item-%04d", i),
			X:  rng.Float64(),
			Y:  rng.Float64(),
		}
	}
	return items
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default chain", Config{Resolutions: []int{64, 128, 256}}, false},
		{"single resolution", Config{Resolutions: []int{32}}, false},
		{"ratio four", Config{Resolutions: []int{16, 64}}, false},
		{"with margin", Config{Resolutions: []int{64}, Margin: 0.05}, false},

		{"empty", Config{}, true},
		{"zero resolution", Config{Resolutions: []int{0}}, true},
		{"negative resolution", Config{Resolutions: []int{-4}}, true},
		{"not increasing", Config{Resolutions: []int{128, 64}}, true},
		{"duplicate", Config{Resolutions: []int{64, 64}}, true},
		{"not a multiple", Config{Resolutions: []int{64, 100}}, true},
		{"negative margin", Config{Resolutions: []int{64}, Margin: -0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBuildPartitionIsExhaustiveAndDisjoint(t *testing.T) {
	items := testItems(500, 1)
	idx, err := Build(items, Config{Resolutions: []int{4, 8, 16}})
	require.NoError(t, err)

	for _, res := range idx.Resolutions() {
		level, err := idx.Level(res)
		require.NoError(t, err)

		seen := make(map[int]CellKey)
		total := 0
		for key, members := range level.Cells {
			require.NotEmpty(t, members, "no empty cells should be stored")
			for _, i := range members {
				prev, dup := seen[i]
				require.False(t, dup, "item %d in both %v and %v at res %d", i, prev, key, res)
				seen[i] = key

				// Membership: the item's coordinate is inside the cell bounds
				// (allowing the clamped upper edge).
				cb := idx.CellBounds(res, key)
				it := items[i]
				assert.GreaterOrEqual(t, it.X, cb.MinX)
				assert.LessOrEqual(t, it.X, cb.MaxX)
				assert.GreaterOrEqual(t, it.Y, cb.MinY)
				assert.LessOrEqual(t, it.Y, cb.MaxY)
			}
			total += len(members)
		}
		assert.Equal(t, len(items), total, "every item in exactly one cell at res %d", res)
	}
}

func TestBuildUpperBoundClamped(t *testing.T) {
	// Items exactly on the bounding box's upper bound land in the last cell.
	items := []Item{
		{ID: "a", X: 0, Y: 0},
		{ID: "b", X: 1, Y: 1},
	}
	idx, err := Build(items, Config{Resolutions: []int{2}})
	require.NoError(t, err)

	level, err := idx.Level(2)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, level.Cells[CellKey{Col: 0, Row: 0}])
	assert.Equal(t, []int{1}, level.Cells[CellKey{Col: 1, Row: 1}])
}

func TestBuildDegenerateBounds(t *testing.T) {
	// All items at one coordinate: single populated cell, no division by zero.
	items := []Item{
		{ID: "a", X: 0.5, Y: 0.5},
		{ID: "b", X: 0.5, Y: 0.5},
		{ID: "c", X: 0.5, Y: 0.5},
	}
	idx, err := Build(items, Config{Resolutions: []int{64, 128}})
	require.NoError(t, err)

	for _, res := range idx.Resolutions() {
		level, err := idx.Level(res)
		require.NoError(t, err)
		require.Len(t, level.Cells, 1)
		assert.Equal(t, []int{0, 1, 2}, level.Cells[CellKey{Col: 0, Row: 0}])
	}
}

func TestBuildDegenerateSingleAxis(t *testing.T) {
	// Zero Y extent: one row of cells, columns still resolved.
	items := []Item{
		{ID: "a", X: 0.0, Y: 3},
		{ID: "b", X: 0.9, Y: 3},
	}
	idx, err := Build(items, Config{Resolutions: []int{2}})
	require.NoError(t, err)

	level, err := idx.Level(2)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, level.Cells[CellKey{Col: 0, Row: 0}])
	assert.Equal(t, []int{1}, level.Cells[CellKey{Col: 1, Row: 0}])
}

func TestBuildEmptyItemSet(t *testing.T) {
	idx, err := Build(nil, Config{Resolutions: []int{64, 128, 256}})
	require.NoError(t, err)

	for _, res := range idx.Resolutions() {
		level, err := idx.Level(res)
		require.NoError(t, err)
		assert.Empty(t, level.Cells)
	}
}

func TestBuildMarginKeepsItemsInterior(t *testing.T) {
	items := testItems(50, 2)
	idx, err := Build(items, Config{Resolutions: []int{8}, Margin: 0.05})
	require.NoError(t, err)

	tight, ok := BoundsOf(items)
	require.True(t, ok)
	b := idx.Bounds()
	assert.Less(t, b.MinX, tight.MinX)
	assert.Greater(t, b.MaxX, tight.MaxX)
	assert.Less(t, b.MinY, tight.MinY)
	assert.Greater(t, b.MaxY, tight.MaxY)
}

func TestLevelUnknownResolution(t *testing.T) {
	idx, err := Build(testItems(10, 3), Config{Resolutions: []int{4}})
	require.NoError(t, err)

	_, err = idx.Level(99)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidResolution, errors.GetCode(err))
}

func TestCellKeyRoundTrip(t *testing.T) {
	k := CellKey{Col: 17, Row: 240}
	parsed, err := ParseCellKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseCellKey("17")
	assert.Error(t, err)
	_, err = ParseCellKey("a,b")
	assert.Error(t, err)
}

func TestCellKeyParent(t *testing.T) {
	k := CellKey{Col: 130, Row: 255}
	assert.Equal(t, CellKey{Col: 65, Row: 127}, k.Parent(2))
	assert.Equal(t, CellKey{Col: 32, Row: 63}, k.Parent(4))
}
