package pipeline

import (
	"context"
	"testing"

	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/transform"
)

func BenchmarkProcessorResize(b *testing.B) {
	processor := benchProcessor(b)

	req := Request{
		ImageID:    "bench",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
		Spec: domain.TransformSpec{
			Resize:   &domain.ResizeSpec{Width: 640, Height: 360},
			Compress: &domain.CompressSpec{Quality: 82},
		},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Transform(context.Background(), req); err != nil {
			b.Fatalf("transform: %v", err)
		}
	}
}

func BenchmarkProcessorWatermark(b *testing.B) {
	processor := benchProcessor(b)

	req := Request{
		ImageID:    "bench",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
		Spec: domain.TransformSpec{
			Watermark: &domain.WatermarkSpec{Text: "imagekiln", X: 24, Y: 24},
			Format:    &domain.FormatSpec{Type: "png"},
		},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Transform(context.Background(), req); err != nil {
			b.Fatalf("transform: %v", err)
		}
	}
}

func BenchmarkProcessorFilterChain(b *testing.B) {
	processor := benchProcessor(b)

	req := Request{
		ImageID:    "bench",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
		Spec: domain.TransformSpec{
			Resize: &domain.ResizeSpec{Width: 800, Height: 450},
			Rotate: &domain.RotateSpec{Angle: 17},
			Filter: &domain.FilterSpec{Type: transform.FilterSepia},
		},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Transform(context.Background(), req); err != nil {
			b.Fatalf("transform: %v", err)
		}
	}
}

func benchProcessor(b *testing.B) *Processor {
	b.Helper()

	source := buildTestPNG(b, 1920, 1080)
	processor, err := NewProcessor(staticFetcher{data: source}, discardEmitter{})
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}
	return processor
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, req Request, data []byte, format string, width, height int) (Derived, error) {
	return Derived{
		Filename:     derivedFilename(req.ObjectKey, format),
		Bytes:        len(data),
		MIMEType:     transform.MIMEType(format),
		OriginalName: originalName(req),
		Width:        width,
		Height:       height,
	}, nil
}
