package transform

import (
	"bytes"
	"image"
	"testing"
)

func TestRecognizedFiltersChangePixels(t *testing.T) {
	src := buildTestImage(t, 64, 64)

	for _, name := range []string{FilterGrayscale, FilterSepia, FilterBlur, FilterSharpen, FilterEdgeDetect} {
		out := ApplyFilter(src, name)
		if out.Bounds() != src.Bounds() {
			t.Fatalf("filter %q changed dimensions to %v", name, out.Bounds())
		}
		if bytes.Equal(out.Pix, src.Pix) {
			t.Fatalf("filter %q left a non-uniform image unchanged", name)
		}
	}
}

func TestUnrecognizedFilterIsNoop(t *testing.T) {
	src := buildTestImage(t, 32, 32)

	for _, name := range []string{"", "None", "NotARealFilter", "grayscale", "GRAYSCALE"} {
		out := ApplyFilter(src, name)
		if out != src {
			t.Fatalf("filter %q was expected to pass the image through", name)
		}
	}
}

func TestGrayscaleEqualizesChannels(t *testing.T) {
	src := buildTestImage(t, 16, 16)
	out := ApplyFilter(src, FilterGrayscale)

	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != out.Pix[i+1] || out.Pix[i+1] != out.Pix[i+2] {
			t.Fatalf("pixel %d not gray: (%d,%d,%d)", i/4, out.Pix[i], out.Pix[i+1], out.Pix[i+2])
		}
	}
}

func TestSepiaAppliesFixedTint(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i] = 100
		src.Pix[i+1] = 100
		src.Pix[i+2] = 100
		src.Pix[i+3] = 255
	}

	out := ApplyFilter(src, FilterSepia)
	r, g, b := out.Pix[0], out.Pix[1], out.Pix[2]
	if !near(r, 120) || !near(g, 90) || !near(b, 60) {
		t.Fatalf("expected sepia (120,90,60) for luminance 100, got (%d,%d,%d)", r, g, b)
	}

	bright := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	bright.Pix[0], bright.Pix[1], bright.Pix[2], bright.Pix[3] = 250, 250, 250, 255
	out = ApplyFilter(bright, FilterSepia)
	if out.Pix[0] != 255 {
		t.Fatalf("expected red channel to saturate at 255, got %d", out.Pix[0])
	}
}

func near(got uint8, want int) bool {
	diff := int(got) - want
	return diff >= -1 && diff <= 1
}
