package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mosaicviz/mosaic/pkg/errors"
	"github.com/mosaicviz/mosaic/pkg/httputil"
)

// writeJSON writes one document file, compressing when configured.
// Returns the name actually written (with .zst appended if compressed),
// relative to the export directory.
func (e *Exporter) writeJSON(ctx context.Context, name string, data []byte) (string, error) {
	if err := errors.ValidateDocumentName(name); err != nil {
		return "", err
	}
	if e.opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "creating zstd encoder")
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
		name += ".zst"
	}
	if err := e.atomicWrite(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// writePlain writes a file without compression, for documents that must
// stay inspectable regardless of the Compress option.
func (e *Exporter) writePlain(ctx context.Context, name string, data []byte) (string, error) {
	if err := errors.ValidateDocumentName(name); err != nil {
		return "", err
	}
	if err := e.atomicWrite(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// atomicWrite writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial document.
// Transient filesystem failures get a bounded retry.
func (e *Exporter) atomicWrite(ctx context.Context, name string, data []byte) error {
	target := filepath.Join(e.opts.Dir, name)

	write := func() error {
		tmp, err := os.CreateTemp(e.opts.Dir, "."+name+".tmp-*")
		if err != nil {
			return httputil.Retryable(err)
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return httputil.Retryable(err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return httputil.Retryable(err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return httputil.Retryable(err)
		}
		if err := os.Rename(tmpName, target); err != nil {
			os.Remove(tmpName)
			return httputil.Retryable(err)
		}
		return nil
	}

	if err := httputil.Retry(ctx, 3, 100*time.Millisecond, write); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "writing %s", target)
	}
	return nil
}
