package transform

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/imagekiln/imagekiln/internal/domain"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	watermarkDefaultText = "SAMPLE"
	watermarkFontSize    = 24
	watermarkPad         = 5
	watermarkBoxAlpha    = 128
)

// fontChain resolves the watermark font once: a configured TTF/OTF path
// first, then the embedded bitmap face. Failures never propagate; the worst
// case is metric-less measurement in measureText.
type fontChain struct {
	path string
	once sync.Once
	face font.Face
}

func (c *fontChain) load() font.Face {
	c.once.Do(func() {
		if c.path != "" {
			if face, err := loadFontFace(c.path); err == nil {
				c.face = face
				return
			}
		}
		c.face = basicfont.Face7x13
	})
	return c.face
}

func loadFontFace(path string) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    watermarkFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Watermark composites translucent overlay text onto a copy of img. The
// placement is clamped so the full text box stays inside the image, and the
// output dimensions always equal the input dimensions. The draw never fails,
// whatever the text or coordinates.
func (e *Engine) Watermark(img *image.NRGBA, spec domain.WatermarkSpec) *image.NRGBA {
	text := strings.TrimSpace(spec.Text)
	if text == "" {
		text = watermarkDefaultText
	}

	face := e.fonts.load()
	textW, textH, ascent := measureText(face, text)

	bounds := img.Bounds()
	x := clamp(spec.X, 0, bounds.Dx()-textW)
	y := clamp(spec.Y, 0, bounds.Dy()-textH)

	out := imaging.Clone(img)

	box := image.Rect(x-watermarkPad, y-watermarkPad, x+textW+watermarkPad, y+textH+watermarkPad)
	box = box.Intersect(out.Bounds())
	draw.Draw(out, box, image.NewUniform(color.NRGBA{A: watermarkBoxAlpha}), image.Point{}, draw.Over)

	if face != nil {
		drawer := &font.Drawer{
			Dst:  out,
			Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
			Face: face,
			Dot:  fixed.P(x, y+ascent),
		}
		drawer.DrawString(text)
	}

	return out
}

// measureText returns the pixel width, line height, and ascent of the
// rendered text. With no font metrics available at all it falls back to an
// estimated 10px per rune and a fixed 20px line.
func measureText(face font.Face, text string) (w, h, ascent int) {
	if face == nil {
		return 10 * utf8.RuneCountInString(text), 20, 16
	}
	drawer := &font.Drawer{Face: face}
	metrics := face.Metrics()
	return drawer.MeasureString(text).Ceil(), metrics.Height.Ceil(), metrics.Ascent.Ceil()
}
