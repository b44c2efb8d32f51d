// Package cover prepares cover art for embedding: it downscales oversized
// images and recompresses them until they fit a byte budget.
package cover

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration

	"github.com/audio-tag-editor/backend/internal/tags"
)

// Defaults used when Options fields are zero.
const (
	DefaultMaxDimension  = 1000
	DefaultMaxBytes      = 500 * 1024
	DefaultThumbnailSize = 300

	startQuality = 90
	minQuality   = 50
	qualityStep  = 10
)

// ErrEmptyImage is returned when there is no image data to process.
var ErrEmptyImage = errors.New("empty image data")

// Options bounds the embedded cover.
type Options struct {
	MaxDimension int
	MaxBytes     int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	return o
}

// Normalize returns image data fit for embedding and its MIME type.
//
// JPEG and PNG images already within both limits come back untouched. Everything
// else is decoded, scaled to fit MaxDimension with the aspect ratio preserved,
// and re-encoded as JPEG, lowering the quality from 90 to 50 until the result
// fits MaxBytes. If even the lowest quality is too large, that result is
// returned anyway.
func Normalize(data []byte, opts Options) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	opts = opts.withDefaults()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image config: %w", err)
	}

	if (format == "jpeg" || format == "png") &&
		cfg.Width <= opts.MaxDimension && cfg.Height <= opts.MaxDimension &&
		len(data) <= opts.MaxBytes {
		return data, tags.DetectImageMIME(data), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	scaled := fit(img, opts.MaxDimension)

	var out []byte
	for q := startQuality; q >= minQuality; q -= qualityStep {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: q}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		out = buf.Bytes()
		if len(out) <= opts.MaxBytes {
			break
		}
	}

	return out, tags.MIMEJPEG, nil
}

// fit scales img down so neither side exceeds maxDim.
func fit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := Dimensions(bounds.Dx(), bounds.Dy(), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Dimensions returns width and height scaled to fit a maxDim square.
// Sizes already inside the square are returned unchanged.
func Dimensions(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	if width >= height {
		h := height * maxDim / width
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}
	w := width * maxDim / height
	if w < 1 {
		w = 1
	}
	return w, maxDim
}

// Thumbnail returns a JPEG preview no larger than size x size.
func Thumbnail(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if size <= 0 {
		size = DefaultThumbnailSize
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
