// Package pipeline runs the complete aggregation pipeline:
// ingest → index → select → density → layout → thumbnails → export.
//
// The pipeline is the single entry point shared by the CLI commands, so
// every invocation applies the same validation, the same defaults, and
// the same determinism guarantees. Stages emit observability hook
// events; the CLI registers hooks that turn them into debug logs.
package pipeline

import (
	"encoding/json"

	"github.com/mosaicviz/mosaic/pkg/cache"
	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/export"
	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/layout"
)

// Options configures one pipeline run.
type Options struct {
	// Input is the point-table path (.jsonl, .csv, or .sqlite).
	Input string

	// Grid holds resolutions and bounding-box margin. Zero value means
	// the defaults (64/128/256, no margin).
	Grid grid.Config

	// Policy selects cell representatives (center when empty).
	Policy grid.Policy

	// Norm selects density normalization (linear when empty).
	Norm grid.NormMethod

	// LayoutResolution is the grid granularity placed on the board.
	// Zero means the finest configured resolution.
	LayoutResolution int

	// Layout holds the physical sizing parameters.
	Layout layout.Config

	// Export configures the output directory and document limits.
	Export export.Options

	// Thumbs additionally downloads representative thumbnails at the
	// finest resolution.
	Thumbs bool
}

// ValidateAndSetDefaults normalizes the options in place.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Input == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "input path must be set")
	}
	if len(o.Grid.Resolutions) == 0 {
		o.Grid.Resolutions = grid.DefaultResolutions
	}
	if err := o.Grid.Validate(); err != nil {
		return err
	}
	if o.Policy == "" {
		o.Policy = grid.PolicyCenter
	}
	if _, err := grid.ParsePolicy(string(o.Policy)); err != nil {
		return err
	}
	if o.Norm == "" {
		o.Norm = grid.NormLinear
	}
	if _, err := grid.ParseNormMethod(string(o.Norm)); err != nil {
		return err
	}
	if o.LayoutResolution == 0 {
		o.LayoutResolution = o.Grid.Resolutions[len(o.Grid.Resolutions)-1]
	}
	if !hasResolution(o.Grid.Resolutions, o.LayoutResolution) {
		return errors.New(errors.ErrCodeInvalidResolution,
			"layout resolution %d is not one of the configured resolutions", o.LayoutResolution)
	}
	if o.Layout == (layout.Config{}) {
		o.Layout = layout.DefaultConfig
	}
	if err := o.Layout.Validate(); err != nil {
		return err
	}
	if o.Export.Dir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "export directory must be set")
	}
	return nil
}

func hasResolution(resolutions []int, res int) bool {
	for _, r := range resolutions {
		if r == res {
			return true
		}
	}
	return false
}

// Result is what one pipeline run produced.
type Result struct {
	// Index is the built grid hierarchy.
	Index *grid.Index

	// Densities maps item id to its density score at the finest
	// resolution.
	Densities map[string]float64

	// Placements is the physical layout at the layout resolution.
	Placements []layout.Placement

	// Manifest describes the documents written.
	Manifest export.Manifest

	// Skipped counts input rows dropped for missing coordinates.
	Skipped int

	// ThumbsWritten counts downloaded thumbnails, when enabled.
	ThumbsWritten int
}

// inputHash fingerprints the validated item set, independent of the
// source format. Map keys serialize sorted, so the hash is stable.
func inputHash(items []grid.Item) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, err, "hashing input")
	}
	return cache.Hash(data), nil
}
