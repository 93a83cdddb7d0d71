package transform

import (
	"image"
	"math"
	"testing"

	"github.com/imagekiln/imagekiln/internal/domain"
)

func TestResizeProducesExactDimensions(t *testing.T) {
	src := buildTestImage(t, 240, 120)

	for _, dims := range [][2]int{{80, 40}, {50, 50}, {1, 1}, {500, 3}} {
		out := Resize(src, domain.ResizeSpec{Width: dims[0], Height: dims[1]})
		if out.Bounds().Dx() != dims[0] || out.Bounds().Dy() != dims[1] {
			t.Fatalf("resize to %dx%d produced %dx%d", dims[0], dims[1], out.Bounds().Dx(), out.Bounds().Dy())
		}
	}
}

func TestResizeNonPositiveDimensionIsNoop(t *testing.T) {
	src := buildTestImage(t, 240, 120)
	out := Resize(src, domain.ResizeSpec{Width: 0, Height: 50})
	if out != src {
		t.Fatal("expected resize with zero width to pass the image through")
	}
}

func TestCropClampsIntoBounds(t *testing.T) {
	src := buildTestImage(t, 800, 600)

	tests := []struct {
		name         string
		spec         domain.CropSpec
		wantW, wantH int
	}{
		{"in bounds", domain.CropSpec{X: 10, Y: 20, Width: 100, Height: 50}, 100, 50},
		{"origin shifted left", domain.CropSpec{X: 700, Y: 0, Width: 200, Height: 600}, 200, 600},
		{"negative origin", domain.CropSpec{X: -50, Y: -50, Width: 100, Height: 100}, 100, 100},
		{"oversized rect", domain.CropSpec{X: 0, Y: 0, Width: 2000, Height: 2000}, 800, 600},
		{"far off canvas", domain.CropSpec{X: 5000, Y: 5000, Width: 10, Height: 10}, 10, 10},
	}

	for _, tc := range tests {
		out := Crop(src, tc.spec)
		if out.Bounds().Dx() != tc.wantW || out.Bounds().Dy() != tc.wantH {
			t.Fatalf("%s: expected %dx%d, got %dx%d", tc.name, tc.wantW, tc.wantH, out.Bounds().Dx(), out.Bounds().Dy())
		}
		if out.Bounds().Dx() > 800 || out.Bounds().Dy() > 600 {
			t.Fatalf("%s: crop escaped source bounds", tc.name)
		}
	}
}

func TestCropMissingDimensionsIsNoop(t *testing.T) {
	src := buildTestImage(t, 100, 80)
	out := Crop(src, domain.CropSpec{X: 10, Y: 10, Width: 0, Height: 50})
	if out != src {
		t.Fatal("expected crop with zero width to pass the image through")
	}
}

func TestRotateZeroIsNoop(t *testing.T) {
	src := buildTestImage(t, 100, 60)
	if out := Rotate(src, 0); out != src {
		t.Fatal("expected 0-degree rotation to pass the image through")
	}
}

func TestRotateQuarterTurnSwapsDimensions(t *testing.T) {
	src := buildTestImage(t, 200, 600)
	out := Rotate(src, 90)
	if out.Bounds().Dx() != 600 || out.Bounds().Dy() != 200 {
		t.Fatalf("expected 600x200 after 90-degree rotation, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestRotateCanvasContainsRotatedContent(t *testing.T) {
	const w, h = 120, 70
	src := buildTestImage(t, w, h)

	for angle := -360.0; angle <= 360.0; angle += 30 {
		out := Rotate(src, angle)

		rad := angle * math.Pi / 180
		sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
		minW := int(math.Floor(float64(w)*cos+float64(h)*sin)) - 1
		minH := int(math.Floor(float64(w)*sin+float64(h)*cos)) - 1

		if out.Bounds().Dx() < minW || out.Bounds().Dy() < minH {
			t.Fatalf("angle %.0f: canvas %dx%d clips content (need at least %dx%d)",
				angle, out.Bounds().Dx(), out.Bounds().Dy(), minW, minH)
		}
	}
}

func TestFlipMirrorsLeftRight(t *testing.T) {
	src := buildTestImage(t, 50, 30)
	out := Flip(src)

	if out.Bounds() != src.Bounds() {
		t.Fatalf("flip changed dimensions: %v", out.Bounds())
	}
	if got, want := out.NRGBAAt(0, 10), src.NRGBAAt(49, 10); got != want {
		t.Fatalf("expected pixel (49,10) at (0,10) after flip, got %v want %v", got, want)
	}
}

func TestMirrorMirrorsTopBottom(t *testing.T) {
	src := buildTestImage(t, 50, 30)
	out := Mirror(src)

	if out.Bounds() != src.Bounds() {
		t.Fatalf("mirror changed dimensions: %v", out.Bounds())
	}
	if got, want := out.NRGBAAt(10, 0), src.NRGBAAt(10, 29); got != want {
		t.Fatalf("expected pixel (10,29) at (10,0) after mirror, got %v want %v", got, want)
	}
}

func buildTestImage(t testing.TB, w, h int) *image.NRGBA {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = uint8((x * 255) / w)
			img.Pix[i+1] = uint8((y * 255) / h)
			img.Pix[i+2] = 140
			img.Pix[i+3] = 255
		}
	}
	return img
}
