package thumbs

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/mosaicviz/mosaic/pkg/errors"
)

// jpegQuality matches what the viewer expects from upstream thumbnails.
const jpegQuality = 85

// Thumbnail decodes an image (JPEG, PNG, or GIF), scales it down so the
// longest edge is at most maxSize pixels, and re-encodes it as JPEG.
// Images already within bounds are only re-encoded.
func Thumbnail(data []byte, maxSize int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decoding image")
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "image has empty bounds")
	}

	if w > maxSize || h > maxSize {
		if w >= h {
			h = h * maxSize / w
			w = maxSize
		} else {
			w = w * maxSize / h
			h = maxSize
		}
		w, h = max(w, 1), max(h, 1)

		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, err, "encoding thumbnail")
	}
	return buf.Bytes(), nil
}
