package thumbs

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mosaicviz/mosaic/pkg/cache"
	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/httputil"
	"github.com/mosaicviz/mosaic/pkg/observability"
)

// maxDownloadBytes caps one image download. Anything larger is not a
// thumbnail source worth scaling.
const maxDownloadBytes = 32 * 1024 * 1024

// download fetches the image bytes, serving from cache when possible.
// The second return reports whether the cache answered.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, bool, error) {
	if err := errors.ValidateURL(url); err != nil {
		return nil, false, err
	}

	key := cache.HTTPKey("images", url)
	if data, hit, err := f.cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "download")
		return data, true, nil
	}
	observability.Cache().OnCacheMiss(ctx, "download")

	var data []byte
	err := httputil.RetryWithBackoff(ctx, func() error {
		var err error
		data, err = f.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if err := f.cache.Set(ctx, key, data, cache.DefaultTTL); err == nil {
		observability.Cache().OnCacheSet(ctx, "download", len(data))
	}
	return data, false, nil
}

// get performs one HTTP GET. Transient failures come back wrapped as
// retryable; a 429 carries the server's Retry-After so the retry loop
// waits as asked.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "building request for %s", url)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, req.URL.Host, req.URL.Path)
	start := time.Now()

	resp, err := f.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, req.URL.Host, req.URL.Path, err)
		return nil, httputil.Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "fetching %s", url))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, http.MethodGet, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
		if err != nil {
			return nil, httputil.Retryable(errors.Wrap(errors.ErrCodeNetwork, err, "reading %s", url))
		}
		return data, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		after, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, httputil.Retryable(&errors.RateLimitedError{RetryAfter: after, Message: url})

	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.ErrCodeNotFound, "image not found: %s", url)

	case resp.StatusCode >= 500:
		return nil, httputil.Retryable(errors.New(errors.ErrCodeNetwork, "fetching %s: status %d", url, resp.StatusCode))

	default:
		return nil, errors.New(errors.ErrCodeNetwork, "fetching %s: status %d", url, resp.StatusCode)
	}
}
