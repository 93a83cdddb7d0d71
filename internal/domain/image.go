package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	SourceTypeLocalFile = "local_file"
	SourceTypeS3Object  = "s3_object"
)

// Image is one catalog record: either an original upload or a derived
// artifact produced by a transform. Derived records point back to their
// source through OriginalName and are never mutated after creation.
type Image struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	MIMEType     string    `json:"mime_type"`
	SourceType   string    `json:"source_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// TransformSpec names up to eight optional operations. A nil field means the
// operation was not requested at all; operations always run in the fixed
// order resize, crop, rotate, flip, mirror, filter, watermark, encode,
// regardless of request field order.
type TransformSpec struct {
	Resize    *ResizeSpec    `json:"resize,omitempty"`
	Crop      *CropSpec      `json:"crop,omitempty"`
	Rotate    *RotateSpec    `json:"rotate,omitempty"`
	Flip      bool           `json:"flip,omitempty"`
	Mirror    bool           `json:"mirror,omitempty"`
	Filter    *FilterSpec    `json:"filter,omitempty"`
	Watermark *WatermarkSpec `json:"watermark,omitempty"`
	Compress  *CompressSpec  `json:"compress,omitempty"`
	Format    *FormatSpec    `json:"format,omitempty"`
}

type ResizeSpec struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type CropSpec struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RotateSpec holds an angle in degrees. Positive values rotate
// counter-clockwise; any magnitude and sign is accepted, 0 is a pass-through.
type RotateSpec struct {
	Angle float64 `json:"angle"`
}

type FilterSpec struct {
	Type string `json:"type"`
}

type WatermarkSpec struct {
	Text string `json:"text"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type CompressSpec struct {
	Quality int `json:"quality"`
}

type FormatSpec struct {
	Type string `json:"type"`
}

// Validate checks the numeric boundary rules once, at the API edge.
// Enumerated fields (filter type, format type) are deliberately not checked
// here: unrecognized values degrade to a pass-through or the default format
// further down the pipeline.
func (s TransformSpec) Validate() error {
	if s.Resize != nil {
		if s.Resize.Width <= 0 || s.Resize.Height <= 0 {
			return fmt.Errorf("resize requires positive width and height, got %dx%d", s.Resize.Width, s.Resize.Height)
		}
	}
	if s.Compress != nil {
		if s.Compress.Quality < 1 || s.Compress.Quality > 100 {
			return fmt.Errorf("compress.quality must be in [1,100], got %d", s.Compress.Quality)
		}
	}
	return nil
}

// TransformRequest is the API request body for POST /v1/images/{id}/transform.
type TransformRequest struct {
	Spec       TransformSpec `json:"spec"`
	WebhookURL string        `json:"webhook_url,omitempty"`
}

func (r TransformRequest) Validate() error {
	if r.WebhookURL != "" && !strings.HasPrefix(r.WebhookURL, "http://") && !strings.HasPrefix(r.WebhookURL, "https://") {
		return errors.New("webhook_url must be an http(s) URL")
	}
	return r.Spec.Validate()
}
