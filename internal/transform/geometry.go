package transform

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/imagekiln/imagekiln/internal/domain"
)

// rotateFill is the documented fill for canvas area exposed by arbitrary-
// angle rotation. The working raster is already alpha-flattened, so an
// opaque fill keeps every output format consistent.
var rotateFill = color.NRGBA{R: 0, G: 0, B: 0, A: 255}

// Resize scales to exactly the requested dimensions with Lanczos resampling.
// Non-positive dimensions are treated as "not requested".
func Resize(img *image.NRGBA, spec domain.ResizeSpec) *image.NRGBA {
	if spec.Width <= 0 || spec.Height <= 0 {
		return img
	}
	return imaging.Resize(img, spec.Width, spec.Height, imaging.Lanczos)
}

// Crop extracts the requested axis-aligned rectangle, clamped so it always
// lies entirely within the image. Out-of-range input shifts and shrinks the
// rectangle instead of failing.
func Crop(img *image.NRGBA, spec domain.CropSpec) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	cw := spec.Width
	ch := spec.Height
	if cw <= 0 || ch <= 0 {
		return img
	}
	if cw > w {
		cw = w
	}
	if ch > h {
		ch = h
	}

	x := clamp(spec.X, 0, w-cw)
	y := clamp(spec.Y, 0, h-ch)
	cw = min(cw, w-x)
	ch = min(ch, h-y)

	return imaging.Crop(img, image.Rect(x, y, x+cw, y+ch))
}

// Rotate rotates counter-clockwise by angle degrees, expanding the canvas to
// contain the full rotated content. Exposed corners take rotateFill. A zero
// angle passes the image through unchanged.
func Rotate(img *image.NRGBA, angle float64) *image.NRGBA {
	if angle == 0 {
		return img
	}
	return imaging.Rotate(img, angle, rotateFill)
}

// Flip mirrors left-to-right across the vertical axis.
func Flip(img *image.NRGBA) *image.NRGBA {
	return imaging.FlipH(img)
}

// Mirror mirrors top-to-bottom across the horizontal axis.
func Mirror(img *image.NRGBA) *image.NRGBA {
	return imaging.FlipV(img)
}
