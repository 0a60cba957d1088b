package grid

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

// NormMethod is the density normalization method. Raw occupancy counts are
// typically heavy-tailed, so the method is configurable.
type NormMethod string

const (
	// NormLinear divides by the maximum cell occupancy.
	NormLinear NormMethod = "linear"

	// NormLog divides log1p(count) by log1p(max), compressing the tail.
	NormLog NormMethod = "log"

	// NormPercentile divides by the 95th percentile of cell occupancies,
	// clipped to 1, so one outlier cell cannot flatten every other score.
	NormPercentile NormMethod = "percentile"
)

// percentileClip is the quantile used by NormPercentile.
const percentileClip = 0.95

// ParseNormMethod validates a normalization method name from configuration.
func ParseNormMethod(s string) (NormMethod, error) {
	switch NormMethod(s) {
	case NormLinear, NormLog, NormPercentile:
		return NormMethod(s), nil
	case "":
		return NormLinear, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidConfig, "unknown normalization method %q", s)
	}
}

// DensityScores computes a [0,1] density score per item from the occupancy
// of its cell at the finest resolution. Items sharing a cell share a score,
// and scores are monotone in occupancy regardless of method. An empty item
// set produces an empty map.
func (x *Index) DensityScores(method NormMethod) (map[string]float64, error) {
	level, err := x.Level(x.Finest())
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(x.items))
	if len(level.Cells) == 0 {
		return scores, nil
	}

	counts := make([]float64, 0, len(level.Cells))
	for _, members := range level.Cells {
		counts = append(counts, float64(len(members)))
	}
	sort.Float64s(counts)

	scale, err := normScale(method, counts)
	if err != nil {
		return nil, err
	}

	for _, members := range level.Cells {
		s := normScore(method, float64(len(members)), scale)
		for _, i := range members {
			scores[x.items[i].ID] = s
		}
	}
	return scores, nil
}

// CellDensities computes the [0,1] score per populated cell at the given
// resolution, using that resolution's own occupancy distribution. The
// layout engine scales representatives of a chosen resolution with this.
func (x *Index) CellDensities(res int, method NormMethod) (map[CellKey]float64, error) {
	level, err := x.Level(res)
	if err != nil {
		return nil, err
	}

	out := make(map[CellKey]float64, len(level.Cells))
	if len(level.Cells) == 0 {
		return out, nil
	}

	counts := make([]float64, 0, len(level.Cells))
	for _, members := range level.Cells {
		counts = append(counts, float64(len(members)))
	}
	sort.Float64s(counts)

	scale, err := normScale(method, counts)
	if err != nil {
		return nil, err
	}

	for key, members := range level.Cells {
		out[key] = normScore(method, float64(len(members)), scale)
	}
	return out, nil
}

// normScale derives the denominator for a sorted, non-empty count slice.
func normScale(method NormMethod, sortedCounts []float64) (float64, error) {
	maxCount := sortedCounts[len(sortedCounts)-1]
	switch method {
	case NormLinear:
		return maxCount, nil
	case NormLog:
		return math.Log1p(maxCount), nil
	case NormPercentile:
		// Empirical quantile over the observed cell occupancies. With a
		// single cell this degenerates to that cell's count, so a lone
		// item still scores 1.0.
		return stat.Quantile(percentileClip, stat.Empirical, sortedCounts, nil), nil
	default:
		return 0, errors.New(errors.ErrCodeInvalidConfig, "unknown normalization method %q", method)
	}
}

// normScore maps one occupancy count to [0,1] given the method's scale.
// Every populated cell has count ≥ 1 and scale ≥ 1, so no division by zero.
func normScore(method NormMethod, count, scale float64) float64 {
	var s float64
	switch method {
	case NormLog:
		s = math.Log1p(count) / scale
	default:
		s = count / scale
	}
	return min(s, 1)
}
