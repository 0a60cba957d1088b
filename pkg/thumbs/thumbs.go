// Package thumbs downloads and prepares the thumbnail image for each
// grid cell's representative item.
//
// Fetching is best-effort: a cell whose image cannot be downloaded or
// decoded is logged and skipped, never failing the run, because the
// viewer degrades gracefully to captions. Downloads go through the
// shared cache so re-runs over the same input touch the network only
// for new representatives.
package thumbs

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicviz/mosaic/pkg/cache"
	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/observability"
)

const (
	// MaxImageSize is the longest thumbnail edge in pixels.
	MaxImageSize = 512

	// fetchConcurrency bounds parallel downloads.
	fetchConcurrency = 8

	httpTimeout = 10 * time.Second
)

// Fetcher downloads representative images and writes thumbnails.
type Fetcher struct {
	http    *http.Client
	cache   cache.Cache
	logger  *log.Logger
	maxSize int
}

// NewFetcher creates a fetcher backed by the given cache. A nil cache
// disables caching; a nil logger uses the default.
func NewFetcher(c cache.Cache, logger *log.Logger) *Fetcher {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		http:    &http.Client{Timeout: httpTimeout},
		cache:   c,
		logger:  logger,
		maxSize: MaxImageSize,
	}
}

// Stats summarizes one thumbnail run.
type Stats struct {
	Written int // thumbnails written
	Cached  int // downloads served from cache
	Skipped int // cells skipped (no image, fetch or decode failure)
}

// ImagePath is the thumbnail path for a cell, relative to the output
// directory. Slash-separated, as exported cell entries reference it.
func ImagePath(res int, key grid.CellKey) string {
	return fmt.Sprintf("images/%d/%d_%d.jpg", res, key.Col, key.Row)
}

// FetchAll downloads the image for every representative at the finest
// resolution and writes thumbnails under dir. Failures skip the cell.
// The returned map holds the ImagePath of every thumbnail on disk,
// keyed by cell, for the exporter to record in cell entries.
func (f *Fetcher) FetchAll(ctx context.Context, idx *grid.Index, policy grid.Policy, dir string) (map[grid.CellKey]string, Stats, error) {
	res := idx.Finest()
	reps, err := idx.Representatives(res, policy)
	if err != nil {
		return nil, Stats{}, err
	}

	if err := os.MkdirAll(filepath.Join(dir, "images", strconv.Itoa(res)), 0o755); err != nil {
		return nil, Stats{}, errors.Wrap(errors.ErrCodeInvalidPath, err, "creating image directory")
	}

	keys := make([]grid.CellKey, 0, len(reps))
	for k := range reps {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Row != keys[j].Row {
			return keys[i].Row < keys[j].Row
		}
		return keys[i].Col < keys[j].Col
	})

	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, observability.StageThumbs, len(keys))
	start := time.Now()

	var mu sync.Mutex
	var stats Stats
	images := make(map[grid.CellKey]string, len(keys))
	items := idx.Items()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, key := range keys {
		rep := reps[key]
		item := items[rep.ItemIdx]
		g.Go(func() error {
			outcome := f.fetchOne(gctx, item, filepath.Join(dir, ImagePath(res, key)))
			mu.Lock()
			switch outcome {
			case outcomeWritten:
				stats.Written++
				images[key] = ImagePath(res, key)
			case outcomeCached:
				stats.Written++
				stats.Cached++
				images[key] = ImagePath(res, key)
			default:
				stats.Skipped++
			}
			mu.Unlock()
			return gctx.Err()
		})
	}
	err = g.Wait()

	hooks.OnStageComplete(ctx, observability.StageThumbs, time.Since(start), err)
	if err != nil {
		return nil, stats, err
	}

	f.logger.Info("thumbnails done",
		"resolution", res,
		"written", stats.Written,
		"cached", stats.Cached,
		"skipped", stats.Skipped)
	return images, stats, nil
}

type fetchOutcome int

const (
	outcomeSkipped fetchOutcome = iota
	outcomeWritten
	outcomeCached
)

// fetchOne downloads, scales, and writes one cell's thumbnail.
// All failures are reported as a skip. The scaled thumbnail is cached
// alongside the raw download so warm re-runs skip decode and resize.
func (f *Fetcher) fetchOne(ctx context.Context, item grid.Item, path string) fetchOutcome {
	url := imageURL(item)
	if url == "" {
		f.logger.Debug("no image for representative", "id", item.ID)
		return outcomeSkipped
	}

	thumbKey := cache.ImageKey(url, f.maxSize)
	if thumb, hit, err := f.cache.Get(ctx, thumbKey); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "thumb")
		if err := os.WriteFile(path, thumb, 0o644); err != nil {
			f.logger.Warn("thumbnail write failed", "id", item.ID, "path", path, "err", err)
			return outcomeSkipped
		}
		return outcomeCached
	}
	observability.Cache().OnCacheMiss(ctx, "thumb")

	data, cached, err := f.download(ctx, url)
	if err != nil {
		f.logger.Warn("image fetch failed", "id", item.ID, "url", url, "err", err)
		return outcomeSkipped
	}

	thumb, err := Thumbnail(data, f.maxSize)
	if err != nil {
		f.logger.Warn("image decode failed", "id", item.ID, "url", url, "err", err)
		return outcomeSkipped
	}

	if err := os.WriteFile(path, thumb, 0o644); err != nil {
		f.logger.Warn("thumbnail write failed", "id", item.ID, "path", path, "err", err)
		return outcomeSkipped
	}
	if err := f.cache.Set(ctx, thumbKey, thumb, cache.DefaultTTL); err == nil {
		observability.Cache().OnCacheSet(ctx, "thumb", len(thumb))
	}
	if cached {
		return outcomeCached
	}
	return outcomeWritten
}

// imageURL picks the item's image reference: the explicit img key when
// present, the source URL otherwise.
func imageURL(item grid.Item) string {
	if s, ok := item.Meta[grid.MetaImage].(string); ok && s != "" {
		return s
	}
	return item.URL()
}
