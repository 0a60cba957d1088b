package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mosaicviz/mosaic/pkg/cache"
	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/export"
	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/ingest"
	"github.com/mosaicviz/mosaic/pkg/layout"
	"github.com/mosaicviz/mosaic/pkg/observability"
	"github.com/mosaicviz/mosaic/pkg/thumbs"
)

// Runner executes pipeline runs. It is stateless apart from the cache
// and logger, so one Runner can serve concurrent runs.
type Runner struct {
	Cache  cache.Cache
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables thumbnail caching;
// a nil logger uses the default.
func NewRunner(c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Logger: logger}
}

// Execute runs the full pipeline and writes every output document.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	hooks := observability.Pipeline()
	result := &Result{}

	// Stage 1: ingest.
	start := time.Now()
	hooks.OnStageStart(ctx, observability.StageIngest, 0)
	in, err := ingest.ReadFile(ctx, opts.Input)
	hooks.OnStageComplete(ctx, observability.StageIngest, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Skipped = len(in.Skipped)
	for _, issue := range in.Skipped {
		r.Logger.Debug("skipped input row", "row", issue.Row, "id", issue.ID, "reason", issue.Reason)
	}
	r.Logger.Info("ingested point table",
		"items", len(in.Items),
		"skipped", len(in.Skipped),
		"duration", time.Since(start))

	// Stage 2: index.
	start = time.Now()
	hooks.OnStageStart(ctx, observability.StageIndex, len(in.Items))
	idx, err := grid.Build(in.Items, opts.Grid)
	hooks.OnStageComplete(ctx, observability.StageIndex, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Index = idx
	r.Logger.Info("built grid hierarchy",
		"resolutions", idx.Resolutions(),
		"duration", time.Since(start))

	if warn := checkDegenerate(in.Items, idx.Bounds()); warn != nil {
		r.Logger.Warn(errors.UserMessage(warn))
	}

	// Stage 3: select one representative per populated cell, at every
	// resolution.
	start = time.Now()
	hooks.OnStageStart(ctx, observability.StageSelect, len(in.Items))
	repsByRes, err := selectAll(idx, opts.Policy)
	hooks.OnStageComplete(ctx, observability.StageSelect, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("selected representatives",
		"policy", opts.Policy,
		"cells", len(repsByRes[idx.Finest()]),
		"duration", time.Since(start))

	// Stage 4: density at the finest resolution.
	start = time.Now()
	hooks.OnStageStart(ctx, observability.StageDensity, len(in.Items))
	densities, err := idx.DensityScores(opts.Norm)
	hooks.OnStageComplete(ctx, observability.StageDensity, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Densities = densities

	// Stage 5: layout at the layout resolution.
	start = time.Now()
	hooks.OnStageStart(ctx, observability.StageLayout, 0)
	placements, byCell, err := r.buildLayout(idx, repsByRes[opts.LayoutResolution], opts)
	hooks.OnStageComplete(ctx, observability.StageLayout, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Placements = placements
	r.Logger.Info("computed layout",
		"resolution", opts.LayoutResolution,
		"placements", len(placements),
		"duration", time.Since(start))

	// Stage 6: thumbnails (optional, best effort). Runs before export so
	// documents reference the thumbnails actually written.
	var imagesByRes map[int]map[grid.CellKey]string
	if opts.Thumbs {
		fetcher := thumbs.NewFetcher(r.Cache, r.Logger)
		images, stats, err := fetcher.FetchAll(ctx, idx, opts.Policy, opts.Export.Dir)
		if err != nil {
			return nil, err
		}
		result.ThumbsWritten = stats.Written
		imagesByRes = propagateImages(idx, images)
	}

	// Stage 7: export.
	start = time.Now()
	hooks.OnStageStart(ctx, observability.StageExport, len(idx.Resolutions()))
	manifest, err := r.export(ctx, idx, opts, repsByRes, byCell, imagesByRes, placements)
	hooks.OnStageComplete(ctx, observability.StageExport, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	result.Manifest = manifest
	r.Logger.Info("exported documents",
		"documents", len(manifest.Documents),
		"run_id", manifest.RunID,
		"duration", time.Since(start))

	return result, nil
}

// checkDegenerate reports input sets the pipeline handles but that
// collapse the spatial structure: empty input, a single point, or all
// points sharing an axis. The run proceeds; callers log the warning.
func checkDegenerate(items []grid.Item, b grid.Bounds) error {
	switch {
	case len(items) == 0:
		return errors.New(errors.ErrCodeDegenerateInput, "no items to aggregate; documents will be empty")
	case len(items) == 1:
		return errors.New(errors.ErrCodeDegenerateInput, "single item; every populated cell collapses to it")
	case b.Width() == 0 && b.Height() == 0:
		return errors.New(errors.ErrCodeDegenerateInput, "all items share one coordinate; binning collapses to a single cell")
	case b.Width() == 0:
		return errors.New(errors.ErrCodeDegenerateInput, "zero-width bounds; binning collapses to a single column")
	case b.Height() == 0:
		return errors.New(errors.ErrCodeDegenerateInput, "zero-height bounds; binning collapses to a single row")
	}
	return nil
}

// selectAll picks representatives at every configured resolution, so
// layout, thumbnails, and export all see the same selection.
func selectAll(idx *grid.Index, policy grid.Policy) (map[int]map[grid.CellKey]grid.Representative, error) {
	byRes := make(map[int]map[grid.CellKey]grid.Representative, len(idx.Resolutions()))
	for _, res := range idx.Resolutions() {
		reps, err := idx.Representatives(res, policy)
		if err != nil {
			return nil, err
		}
		byRes[res] = reps
	}
	return byRes, nil
}

// propagateImages spreads the finest-resolution thumbnail paths up the
// hierarchy: each coarser cell reuses the thumbnail of its most
// populated child cell that has one, count ties broken by lowest
// (row, col) child.
func propagateImages(idx *grid.Index, finest map[grid.CellKey]string) map[int]map[grid.CellKey]string {
	resolutions := idx.Resolutions()
	byRes := map[int]map[grid.CellKey]string{idx.Finest(): finest}

	for i := len(resolutions) - 2; i >= 0; i-- {
		coarse, fine := resolutions[i], resolutions[i+1]
		ratio := fine / coarse

		type child struct {
			count int
			key   grid.CellKey
		}
		best := make(map[grid.CellKey]child)
		for fk := range byRes[fine] {
			parent := fk.Parent(ratio)
			count := len(idx.CellItems(fine, fk))
			b, ok := best[parent]
			if !ok || count > b.count || (count == b.count && lessKey(fk, b.key)) {
				best[parent] = child{count: count, key: fk}
			}
		}

		level := make(map[grid.CellKey]string, len(best))
		for pk, b := range best {
			level[pk] = byRes[fine][b.key]
		}
		byRes[coarse] = level
	}
	return byRes
}

func lessKey(a, b grid.CellKey) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

// buildLayout turns the layout resolution's representatives into placed
// candidates, keyed both as a sorted list and by cell for the exporter.
func (r *Runner) buildLayout(idx *grid.Index, reps map[grid.CellKey]grid.Representative, opts Options) ([]layout.Placement, map[grid.CellKey]layout.Placement, error) {
	res := opts.LayoutResolution
	scores, err := idx.CellDensities(res, opts.Norm)
	if err != nil {
		return nil, nil, err
	}

	items := idx.Items()
	candidates := make([]layout.Candidate, 0, len(reps))
	for key, rep := range reps {
		item := items[rep.ItemIdx]
		c := layout.Candidate{
			ID:      rep.ID,
			Cell:    key,
			Score:   scores[key],
			Caption: item.Caption(),
			URL:     item.URL(),
		}
		if img, ok := item.Meta[grid.MetaImage].(string); ok {
			c.Image = img
		}
		candidates = append(candidates, c)
	}

	placements, err := layout.Build(candidates, res, opts.Layout)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]layout.Placement, len(placements))
	for _, p := range placements {
		byID[p.ID] = p
	}
	byCell := make(map[grid.CellKey]layout.Placement, len(candidates))
	for _, c := range candidates {
		byCell[c.Cell] = byID[c.ID]
	}
	return placements, byCell, nil
}

// export writes the per-resolution documents, the placement list, and
// the run manifest.
func (r *Runner) export(
	ctx context.Context,
	idx *grid.Index,
	opts Options,
	repsByRes map[int]map[grid.CellKey]grid.Representative,
	byCell map[grid.CellKey]layout.Placement,
	imagesByRes map[int]map[grid.CellKey]string,
	placements []layout.Placement,
) (export.Manifest, error) {
	exp, err := export.New(opts.Export)
	if err != nil {
		return export.Manifest{}, err
	}

	hash, err := inputHash(idx.Items())
	if err != nil {
		return export.Manifest{}, err
	}
	manifest := export.NewManifest(hash, idx.Resolutions(), len(idx.Items()), opts)

	hooks := observability.Pipeline()
	for _, res := range idx.Resolutions() {
		var attach map[grid.CellKey]layout.Placement
		if res == opts.LayoutResolution {
			attach = byCell
		}
		doc, err := exp.BuildDocument(idx, res, repsByRes[res], attach, imagesByRes[res])
		if err != nil {
			return export.Manifest{}, err
		}
		names, err := exp.WriteDocument(ctx, export.GridFileName(res), doc)
		if err != nil {
			return export.Manifest{}, err
		}
		manifest.Documents = append(manifest.Documents, names...)
		hooks.OnResolutionDone(ctx, observability.StageExport, res, len(doc))
	}

	name, err := exp.WritePlacements(ctx, placements, opts.Layout)
	if err != nil {
		return export.Manifest{}, err
	}
	manifest.Documents = append(manifest.Documents, name)

	if _, err := exp.WriteManifest(ctx, manifest); err != nil {
		return export.Manifest{}, err
	}
	return manifest, nil
}
