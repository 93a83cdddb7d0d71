// Package pipeline orchestrates one transform call: fetch the encoded
// source, run the transform engine, and persist the derived artifact under a
// fresh filename. Fetching and persisting are pluggable stages so the same
// processor serves local files and object storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/id"
	"github.com/imagekiln/imagekiln/internal/transform"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

// Request names one source image and the operations to apply to it.
type Request struct {
	ImageID      string
	UserID       string
	SourceType   string
	ObjectKey    string
	OriginalName string
	Spec         domain.TransformSpec
}

// Derived describes the newly created artifact. The source file is never
// touched; Filename is always distinct from the source filename.
type Derived struct {
	Filename     string
	Path         string
	Bytes        int
	MIMEType     string
	OriginalName string
	Width        int
	Height       int
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, data []byte, format string, width, height int) (Derived, error)
}

type Processor struct {
	fetcher Fetcher
	engine  *transform.Engine
	emitter Emitter
}

// NewLocalProcessor builds a processor that reads and writes the local
// filesystem. With an empty outputDir, derived files land next to their
// source, which matches how uploads are laid out.
func NewLocalProcessor(outputDir, fontPath string) *Processor {
	return &Processor{
		fetcher: LocalFileFetcher{},
		engine:  transform.NewEngine(transform.WithFontPath(fontPath)),
		emitter: LocalFileEmitter{OutputDir: outputDir},
	}
}

func NewProcessor(fetcher Fetcher, emitter Emitter, opts ...transform.Option) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{
		fetcher: fetcher,
		engine:  transform.NewEngine(opts...),
		emitter: emitter,
	}, nil
}

// Transform runs the full pipeline for one request. Fetch and decode
// failures surface as *transform.LoadError; everything downstream surfaces
// as *transform.Error with the failing stage named. No partial artifact is
// committed on failure.
func (p *Processor) Transform(ctx context.Context, req Request) (Derived, error) {
	if strings.TrimSpace(req.ObjectKey) == "" {
		return Derived{}, &transform.LoadError{Path: req.ObjectKey, Err: errors.New("source path is required")}
	}

	data, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Derived{}, &transform.LoadError{Path: req.ObjectKey, Err: err}
	}

	img, _, err := transform.Decode(data)
	if err != nil {
		return Derived{}, &transform.LoadError{Path: req.ObjectKey, Err: err}
	}

	out, err := p.engine.Apply(ctx, img, req.Spec)
	if err != nil {
		return Derived{}, &transform.Error{Stage: "apply", Err: err}
	}

	format, quality := transform.OutputOptions(req.Spec)
	encoded, err := transform.Encode(out, format, quality)
	if err != nil {
		return Derived{}, &transform.Error{Stage: "encode", Err: err}
	}

	derived, err := p.emitter.Emit(ctx, req, encoded, format, out.Bounds().Dx(), out.Bounds().Dy())
	if err != nil {
		return Derived{}, &transform.Error{Stage: "persist", Err: err}
	}

	return derived, nil
}

// derivedFilename builds "<base>_transformed_<suffix>.<ext>" from the source
// object key.
func derivedFilename(objectKey, format string) string {
	base := filepath.Base(objectKey)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_transformed_%s.%s", sanitizePathToken(base), id.Suffix(), transform.NormalizeFormat(format))
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, data []byte, format string, width, height int) (Derived, error) {
	dir := strings.TrimSpace(e.OutputDir)
	if dir == "" {
		dir = filepath.Dir(req.ObjectKey)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Derived{}, fmt.Errorf("create output dir: %w", err)
	}

	filename := derivedFilename(req.ObjectKey, format)
	fullPath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Derived{}, fmt.Errorf("write output file: %w", err)
	}

	return Derived{
		Filename:     filename,
		Path:         fullPath,
		Bytes:        len(data),
		MIMEType:     transform.MIMEType(format),
		OriginalName: originalName(req),
		Width:        width,
		Height:       height,
	}, nil
}

func originalName(req Request) string {
	if strings.TrimSpace(req.OriginalName) != "" {
		return req.OriginalName
	}
	return filepath.Base(req.ObjectKey)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
