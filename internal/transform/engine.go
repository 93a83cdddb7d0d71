// Package transform implements the image transformation engine: a fixed
// pipeline of optional raster operations (resize, crop, rotate, flip, mirror,
// filter, watermark) followed by a format/quality-aware encode. Every stage
// takes and returns an *image.NRGBA, so stages compose and are testable in
// isolation. Inputs are normalized to an opaque 3-channel representation
// before any operation runs.
package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/imagekiln/imagekiln/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Engine applies TransformSpecs to decoded rasters. It is stateless apart
// from the lazily loaded watermark font and safe for concurrent use.
type Engine struct {
	fonts *fontChain
}

type Option func(*Engine)

// WithFontPath sets a TTF/OTF file to try first when the watermark
// compositor needs a font. Loading failures fall through to the embedded
// fallback face and are never surfaced to callers.
func WithFontPath(path string) Option {
	return func(e *Engine) {
		e.fonts.path = path
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{fonts: &fontChain{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decode decodes an encoded raster and normalizes it. It returns the
// normalized image and the detected source format name.
func Decode(data []byte) (*image.NRGBA, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return Normalize(src), format, nil
}

// Normalize flattens any alpha or palette channel onto an opaque white
// background, so every downstream operation works on a uniform 3-channel
// raster regardless of the eventual output format.
func Normalize(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	base := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return imaging.Overlay(base, src, image.Pt(0, 0), 1.0)
}

// Apply runs the requested operations in the fixed pipeline order. Each
// operation runs only when its spec key is present; the encode step is
// handled separately by Encode/OutputOptions.
func (e *Engine) Apply(ctx context.Context, img *image.NRGBA, spec domain.TransformSpec) (*image.NRGBA, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if spec.Resize != nil {
		img = Resize(img, *spec.Resize)
	}
	if spec.Crop != nil {
		img = Crop(img, *spec.Crop)
	}
	if spec.Rotate != nil {
		img = Rotate(img, spec.Rotate.Angle)
	}
	if spec.Flip {
		img = Flip(img)
	}
	if spec.Mirror {
		img = Mirror(img)
	}
	if spec.Filter != nil {
		img = ApplyFilter(img, spec.Filter.Type)
	}
	if spec.Watermark != nil {
		img = e.Watermark(img, *spec.Watermark)
	}

	return img, nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
