package transform

import (
	"image"

	"github.com/disintegration/imaging"
)

// Recognized filter names. Matching is exact: anything else, including the
// empty string and "None", is a pass-through rather than an error.
const (
	FilterGrayscale  = "Grayscale"
	FilterSepia      = "Sepia"
	FilterBlur       = "Blur"
	FilterSharpen    = "Sharpen"
	FilterEdgeDetect = "Edge Detection"
)

const (
	blurSigma    = 1.5
	sharpenSigma = 1.0
)

// edgeKernel is a 3x3 Laplacian that leaves flat regions dark and
// highlights intensity discontinuities.
var edgeKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

// ApplyFilter applies one named pixel-level effect. The result keeps the
// input dimensions and stays a 3-channel-encodable raster.
func ApplyFilter(img *image.NRGBA, name string) *image.NRGBA {
	switch name {
	case FilterGrayscale:
		return imaging.Grayscale(img)
	case FilterSepia:
		return sepia(img)
	case FilterBlur:
		return imaging.Blur(img, blurSigma)
	case FilterSharpen:
		return imaging.Sharpen(img, sharpenSigma)
	case FilterEdgeDetect:
		return imaging.Convolve3x3(img, edgeKernel, nil)
	default:
		return img
	}
}

// sepia maps each pixel's luminance L to (L*1.2, L*0.9, L*0.6), saturating
// at 255. The tint is a fixed linear ramp, independent of the source hue.
func sepia(img *image.NRGBA) *image.NRGBA {
	out := imaging.Grayscale(img)
	for i := 0; i < len(out.Pix); i += 4 {
		l := float64(out.Pix[i])
		out.Pix[i] = saturate(l * 1.2)
		out.Pix[i+1] = saturate(l * 0.9)
		out.Pix[i+2] = saturate(l * 0.6)
		out.Pix[i+3] = 255
	}
	return out
}

func saturate(v float64) uint8 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}
