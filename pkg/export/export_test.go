package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/layout"
)

func testIndex(t *testing.T) *grid.Index {
	t.Helper()
	items := []grid.Item{
		{ID: "a", X: 0.1, Y: 0.1, Meta: grid.Metadata{"caption": "alpha", "url": "https://example.com/a", "img": "images/a.jpg"}},
		{ID: "b", X: 0.2, Y: 0.2},
		{ID: "c", X: 0.9, Y: 0.9, Meta: grid.Metadata{"caption": "gamma"}},
		{ID: "d", X: 0.85, Y: 0.95},
	}
	idx, err := grid.Build(items, grid.Config{Resolutions: []int{2}})
	require.NoError(t, err)
	return idx
}

func selectReps(t *testing.T, idx *grid.Index, res int) map[grid.CellKey]grid.Representative {
	t.Helper()
	reps, err := idx.Representatives(res, grid.PolicyCenter)
	require.NoError(t, err)
	return reps
}

func TestBuildDocument(t *testing.T) {
	e, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	idx := testIndex(t)
	doc, err := e.BuildDocument(idx, 2, selectReps(t, idx, 2), nil, nil)
	require.NoError(t, err)
	require.Len(t, doc, 2)

	entry, ok := doc["0,0"]
	require.True(t, ok)
	assert.Equal(t, 2, entry.Count)
	require.Len(t, entry.Examples, 2)
	// Examples start at the representative itself.
	assert.Equal(t, entry.ID, entry.Examples[0].ID)
	assert.Nil(t, entry.Placement)
}

func TestBuildDocumentMetadataPassthrough(t *testing.T) {
	items := []grid.Item{
		{ID: "a", X: 0, Y: 0, Meta: grid.Metadata{"caption": "alpha", "url": "https://example.com/a", "img": "images/a.jpg"}},
	}
	idx, err := grid.Build(items, grid.Config{Resolutions: []int{1}})
	require.NoError(t, err)

	e, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	doc, err := e.BuildDocument(idx, 1, selectReps(t, idx, 1), nil, nil)
	require.NoError(t, err)

	entry := doc["0,0"]
	require.NotNil(t, entry)
	assert.Equal(t, "alpha", entry.Caption)
	assert.Equal(t, "https://example.com/a", entry.URL)
	assert.Equal(t, "images/a.jpg", entry.Image)
}

func TestBuildDocumentThumbnailPaths(t *testing.T) {
	e, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	idx := testIndex(t)
	images := map[grid.CellKey]string{
		{Col: 0, Row: 0}: "images/2/0_0.jpg",
	}
	doc, err := e.BuildDocument(idx, 2, selectReps(t, idx, 2), nil, images)
	require.NoError(t, err)

	// The written thumbnail wins over any img carried in metadata; cells
	// without a thumbnail fall back to metadata (none here).
	assert.Equal(t, "images/2/0_0.jpg", doc["0,0"].Image)
	assert.Empty(t, doc["1,1"].Image)
}

func TestBuildDocumentExamplesCapped(t *testing.T) {
	var items []grid.Item
	for i := 0; i < 20; i++ {
		items = append(items, grid.Item{ID: fmt.Sprintf("i%02d", i), X: float64(i) / 100, Y: 0})
	}
	idx, err := grid.Build(items, grid.Config{Resolutions: []int{1}})
	require.NoError(t, err)

	e, err := New(Options{Dir: t.TempDir(), ExamplesPerCell: 5})
	require.NoError(t, err)
	doc, err := e.BuildDocument(idx, 1, selectReps(t, idx, 1), nil, nil)
	require.NoError(t, err)
	assert.Len(t, doc["0,0"].Examples, 5)

	e, err = New(Options{Dir: t.TempDir(), ExamplesPerCell: -1})
	require.NoError(t, err)
	doc, err = e.BuildDocument(idx, 1, selectReps(t, idx, 1), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, doc["0,0"].Examples)
}

func TestBuildDocumentAttachesPlacements(t *testing.T) {
	e, err := New(Options{Dir: t.TempDir()})
	require.NoError(t, err)

	placements := map[grid.CellKey]layout.Placement{
		{Col: 0, Row: 0}: {ID: "a", X: -225, Y: -225, Size: 400},
	}
	idx := testIndex(t)
	doc, err := e.BuildDocument(idx, 2, selectReps(t, idx, 2), placements, nil)
	require.NoError(t, err)

	require.NotNil(t, doc["0,0"].Placement)
	assert.Equal(t, 400.0, doc["0,0"].Placement.Size)
	assert.Nil(t, doc["1,1"].Placement)
}

func TestWriteDocumentDeterministic(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{Dir: dir})
	require.NoError(t, err)
	idx := testIndex(t)

	var previous []byte
	for run := 0; run < 3; run++ {
		doc, err := e.BuildDocument(idx, 2, selectReps(t, idx, 2), nil, nil)
		require.NoError(t, err)
		names, err := e.WriteDocument(context.Background(), GridFileName(2), doc)
		require.NoError(t, err)
		require.Equal(t, []string{"grid_2.json"}, names)

		data, err := os.ReadFile(filepath.Join(dir, "grid_2.json"))
		require.NoError(t, err)
		if previous != nil {
			assert.Equal(t, previous, data, "re-export must be byte-identical")
		}
		previous = data
	}
}

func TestWriteDocumentSplitsLargeDocuments(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{Dir: dir, MaxDocumentMB: 1})
	require.NoError(t, err)

	// ~2.5 MB of entries with fat captions forces at least three parts.
	doc := Document{}
	caption := strings.Repeat("x", 1000)
	for i := 0; i < 2500; i++ {
		doc[fmt.Sprintf("%d,%d", i%64, i/64)] = &CellEntry{ID: fmt.Sprintf("id-%04d", i), Count: 1, Caption: caption}
	}

	names, err := e.WriteDocument(context.Background(), GridFileName(64), doc)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(names), 3)
	assert.Equal(t, "grid_64_part1.json", names[0])

	// Parts reassemble into the original document with no loss.
	merged := Document{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		require.LessOrEqual(t, len(data), 1024*1024)
		var part Document
		require.NoError(t, json.Unmarshal(data, &part))
		for k, v := range part {
			_, dup := merged[k]
			require.False(t, dup, "key %s in two parts", k)
			merged[k] = v
		}
	}
	assert.Len(t, merged, len(doc))
}

func TestWriteDocumentCompressed(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{Dir: dir, Compress: true})
	require.NoError(t, err)

	doc := Document{"0,0": &CellEntry{ID: "a", Count: 3}}
	names, err := e.WriteDocument(context.Background(), GridFileName(64), doc)
	require.NoError(t, err)
	require.Equal(t, []string{"grid_64.json.zst"}, names)

	data, err := os.ReadFile(filepath.Join(dir, names[0]))
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(data, nil)
	require.NoError(t, err)

	var got Document
	require.NoError(t, json.Unmarshal(plain, &got))
	assert.Equal(t, 3, got["0,0"].Count)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{Dir: dir})
	require.NoError(t, err)

	_, err = e.WriteDocument(context.Background(), GridFileName(64), Document{"0,0": &CellEntry{ID: "a"}})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, ent := range entries {
		assert.False(t, strings.HasPrefix(ent.Name(), "."), "temp file left behind: %s", ent.Name())
	}
}

func TestWritePlacements(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{Dir: dir})
	require.NoError(t, err)

	placements := []layout.Placement{
		{ID: "zeta", X: 100, Y: 100, Size: 250},
		{ID: "alpha", X: -100, Y: -100, Size: 400},
	}
	name, err := e.WritePlacements(context.Background(), placements, layout.DefaultConfig)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var doc PlacementsDocument
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc.Placements, 2)
	assert.Equal(t, "alpha", doc.Placements[0].ID, "placements sorted by id")
	assert.Equal(t, layout.DefaultConfig.BaseSize, doc.Layout.BaseSize)
	assert.Equal(t, layout.DefaultConfig.EffectivePitch(), doc.Layout.Pitch)
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Options{Dir: dir, Compress: true})
	require.NoError(t, err)

	m := NewManifest("deadbeef", []int{64, 128, 256}, 1000, nil)
	m.Documents = []string{"grid_64.json.zst"}
	assert.NotEmpty(t, m.RunID)

	name, err := e.WriteManifest(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, ManifestFileName, name, "manifest is never compressed")

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, "deadbeef", got.InputHash)
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestPartName(t *testing.T) {
	assert.Equal(t, "grid_256_part1.json", partName("grid_256.json", 1))
	assert.Equal(t, "grid_64_part12.json", partName("grid_64.json", 12))
}
