package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/imagekiln/imagekiln/internal/domain"
	"github.com/imagekiln/imagekiln/internal/storage"
	"github.com/imagekiln/imagekiln/internal/transform"
)

const SourceTypeS3Object = domain.SourceTypeS3Object

type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, data []byte, format string, width, height int) (Derived, error) {
	if e.Storage == nil {
		return Derived{}, errors.New("storage client is required")
	}

	filename := derivedFilename(req.ObjectKey, format)
	objectKey := path.Join(
		defaultOutputPrefix(e.OutputPrefix),
		sanitizePathToken(req.UserID),
		filename,
	)

	mimeType := transform.MIMEType(format)
	if err := e.Storage.WriteObject(ctx, objectKey, data, mimeType); err != nil {
		return Derived{}, err
	}

	return Derived{
		Filename:     filename,
		Path:         objectKey,
		Bytes:        len(data),
		MIMEType:     mimeType,
		OriginalName: originalName(req),
		Width:        width,
		Height:       height,
	}, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}
