package grid

import (
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

// Policy selects how the representative of a populated cell is chosen.
// Both policies are deterministic and total over any non-empty cell.
type Policy string

const (
	// PolicyCenter picks the item closest to the cell's geometric center,
	// squared-distance ties broken by lowest identifier.
	PolicyCenter Policy = "center"

	// PolicyDensest subdivides crowded cells into a mini-grid, finds the
	// densest mini-cell, and picks the item closest to that mini-cell's
	// center. Cells at or below miniGridThreshold items fall back to
	// PolicyCenter behavior.
	PolicyDensest Policy = "densest"
)

// Mini-grid parameters for PolicyDensest.
const (
	miniGridSize      = 10
	miniGridThreshold = 50
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyCenter, PolicyDensest:
		return Policy(s), nil
	case "":
		return PolicyCenter, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidConfig, "unknown representative policy %q", s)
	}
}

// Representative is the single item standing in for all items of one cell.
type Representative struct {
	Cell    CellKey
	ItemIdx int    // index into the Index's item slice
	ID      string // representative item identifier
	Count   int    // cell occupancy
}

// Representatives chooses one representative per populated cell at the
// given resolution. Selection is independent per resolution; hierarchy
// consistency across resolutions follows from the disjoint partition
// (every item is in exactly one cell per resolution) and is covered by
// property tests rather than enforced control flow.
//
// An empty level returns an empty map, never an error.
func (x *Index) Representatives(res int, policy Policy) (map[CellKey]Representative, error) {
	level, err := x.Level(res)
	if err != nil {
		return nil, err
	}
	switch policy {
	case PolicyCenter, PolicyDensest:
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown representative policy %q", policy)
	}

	reps := make(map[CellKey]Representative, len(level.Cells))
	var mu sync.Mutex
	var g errgroup.Group

	for key, members := range level.Cells {
		g.Go(func() error {
			rep := x.selectRepresentative(res, key, members, policy)
			mu.Lock()
			reps[key] = rep
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reps, nil
}

// selectRepresentative applies the policy to one non-empty cell.
func (x *Index) selectRepresentative(res int, key CellKey, members []int, policy Policy) Representative {
	cb := x.CellBounds(res, key)

	var cx, cy float64
	if policy == PolicyDensest && len(members) > miniGridThreshold {
		cx, cy = x.densestMiniCenter(cb, members)
	} else {
		cx = (cb.MinX + cb.MaxX) / 2
		cy = (cb.MinY + cb.MaxY) / 2
	}

	best := closestTo(x.items, members, cx, cy)
	return Representative{
		Cell:    key,
		ItemIdx: best,
		ID:      x.items[best].ID,
		Count:   len(members),
	}
}

// densestMiniCenter subdivides the cell into a miniGridSize² mini-grid and
// returns the center of the most populated mini-cell. Occupancy ties are
// broken by lowest (row, col) so the choice never depends on map order.
func (x *Index) densestMiniCenter(cb Bounds, members []int) (float64, float64) {
	w := cb.Width() / miniGridSize
	h := cb.Height() / miniGridSize

	counts := make(map[CellKey]int)
	for _, i := range members {
		it := x.items[i]
		mk := CellKey{
			Col: axisBin(it.X, cb.MinX, cb.Width(), miniGridSize),
			Row: axisBin(it.Y, cb.MinY, cb.Height(), miniGridSize),
		}
		counts[mk]++
	}

	var best CellKey
	bestCount := -1
	for mk, c := range counts {
		if c > bestCount || (c == bestCount && (mk.Row < best.Row || (mk.Row == best.Row && mk.Col < best.Col))) {
			best, bestCount = mk, c
		}
	}

	return cb.MinX + (float64(best.Col)+0.5)*w, cb.MinY + (float64(best.Row)+0.5)*h
}

// closestTo returns the member index closest to (cx, cy), squared-distance
// ties broken by lowest item identifier.
func closestTo(items []Item, members []int, cx, cy float64) int {
	best := members[0]
	bestDist := sqDist(items[best], cx, cy)
	for _, i := range members[1:] {
		d := sqDist(items[i], cx, cy)
		if d < bestDist || (d == bestDist && items[i].ID < items[best].ID) {
			best, bestDist = i, d
		}
	}
	return best
}

func sqDist(it Item, x, y float64) float64 {
	dx := it.X - x
	dy := it.Y - y
	return dx*dx + dy*dy
}

// Neighbors returns the cell's item indices ordered by distance to the
// given anchor item, ties broken by lowest identifier. The exporter uses
// this to pick each cell's example items.
func (x *Index) Neighbors(res int, key CellKey, anchor Item) []int {
	members := x.CellItems(res, key)
	out := append([]int(nil), members...)
	sort.Slice(out, func(a, b int) bool {
		da := sqDist(x.items[out[a]], anchor.X, anchor.Y)
		db := sqDist(x.items[out[b]], anchor.X, anchor.Y)
		if da != db {
			return da < db
		}
		return x.items[out[a]].ID < x.items[out[b]].ID
	})
	return out
}
