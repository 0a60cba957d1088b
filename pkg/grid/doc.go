// Package grid implements the multi-resolution spatial aggregation core.
//
// # Overview
//
// The package takes a flat set of 2D-projected items and partitions the
// bounding box into equal-size cells at a fixed list of resolutions
// (e.g. 64×64, 128×128, 256×256). Resolutions form a strict refinement
// order: every coarse cell maps onto an integer block of finer cells, so
// every item belongs to exactly one cell per resolution and the hierarchy
// is consistent by construction.
//
// On top of the index the package provides:
//
//   - Representative selection: one deterministic representative item per
//     populated cell ([Index.Representatives]). Two policies are supported,
//     closest-to-cell-center and the mini-grid densest-area heuristic.
//   - Density estimation: a normalized [0,1] score per item derived from
//     the occupancy of its cell at the finest resolution
//     ([Index.DensityScores]).
//
// # Determinism
//
// All selection is total and deterministic: distance ties are broken by
// lowest item identifier, mini-grid occupancy ties by lowest (row, col).
// Running the same input twice yields identical results, which the exporter
// relies on for byte-identical documents.
//
// # Usage
//
//	idx, err := grid.Build(items, grid.Config{
//	    Resolutions: []int{64, 128, 256},
//	    Margin:      0.01,
//	})
//	reps, err := idx.Representatives(256, grid.PolicyCenter)
//	scores, err := idx.DensityScores(grid.NormLinear)
package grid
