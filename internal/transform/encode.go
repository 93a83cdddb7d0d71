package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/imagekiln/imagekiln/internal/domain"
	"golang.org/x/image/bmp"
)

// Supported output container formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWEBP = "webp"
	FormatBMP  = "bmp"
	FormatGIF  = "gif"
)

const DefaultQuality = 85

// NormalizeFormat maps a requested format name onto a supported container.
// Unknown names fall back to JPEG, matching the engine's leniency policy for
// enumerated fields.
func NormalizeFormat(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWEBP
	case "bmp":
		return FormatBMP
	case "gif":
		return FormatGIF
	default:
		return FormatJPEG
	}
}

// MIMEType returns the content type for a normalized format name.
func MIMEType(format string) string {
	return "image/" + NormalizeFormat(format)
}

// OutputOptions resolves the encode parameters from a spec: JPEG and quality
// 85 unless the format/compress operations say otherwise.
func OutputOptions(spec domain.TransformSpec) (format string, quality int) {
	format = FormatJPEG
	if spec.Format != nil {
		format = NormalizeFormat(spec.Format.Type)
	}
	quality = DefaultQuality
	if spec.Compress != nil && spec.Compress.Quality >= 1 && spec.Compress.Quality <= 100 {
		quality = spec.Compress.Quality
	}
	return format, quality
}

// Encode serializes img into the given container format. Quality applies to
// the lossy formats (JPEG, WEBP) and is ignored for the rest.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	switch NormalizeFormat(format) {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatWEBP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case FormatBMP:
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
	case FormatGIF:
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	}

	return buf.Bytes(), nil
}
