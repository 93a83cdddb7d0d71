package domain

import (
	"encoding/json"
	"testing"
)

func TestTransformSpecValidate(t *testing.T) {
	valid := TransformSpec{
		Resize:   &ResizeSpec{Width: 100, Height: 50},
		Compress: &CompressSpec{Quality: 85},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid spec, got error: %v", err)
	}

	empty := TransformSpec{}
	if err := empty.Validate(); err != nil {
		t.Fatalf("expected empty spec to validate, got error: %v", err)
	}

	badResize := TransformSpec{Resize: &ResizeSpec{Width: 100}}
	if err := badResize.Validate(); err == nil {
		t.Fatal("expected validation error for resize without height")
	}

	badQuality := TransformSpec{Compress: &CompressSpec{Quality: 0}}
	if err := badQuality.Validate(); err == nil {
		t.Fatal("expected validation error for quality=0")
	}

	overQuality := TransformSpec{Compress: &CompressSpec{Quality: 101}}
	if err := overQuality.Validate(); err == nil {
		t.Fatal("expected validation error for quality=101")
	}

	// Unrecognized enum values stay valid: they degrade later instead of
	// being rejected at the boundary.
	lenient := TransformSpec{
		Filter: &FilterSpec{Type: "NotARealFilter"},
		Format: &FormatSpec{Type: "tiff"},
		Crop:   &CropSpec{X: -10, Y: 9999, Width: -5, Height: 0},
		Rotate: &RotateSpec{Angle: -720},
	}
	if err := lenient.Validate(); err != nil {
		t.Fatalf("expected lenient spec to validate, got error: %v", err)
	}
}

func TestTransformSpecAbsentKeysStayNil(t *testing.T) {
	var spec TransformSpec
	if err := json.Unmarshal([]byte(`{"rotate":{"angle":90}}`), &spec); err != nil {
		t.Fatalf("unmarshal spec: %v", err)
	}

	if spec.Rotate == nil || spec.Rotate.Angle != 90 {
		t.Fatalf("expected rotate angle 90, got %+v", spec.Rotate)
	}
	if spec.Resize != nil || spec.Crop != nil || spec.Filter != nil ||
		spec.Watermark != nil || spec.Compress != nil || spec.Format != nil {
		t.Fatal("expected absent operations to stay nil")
	}
	if spec.Flip || spec.Mirror {
		t.Fatal("expected flip and mirror to default to false")
	}
}

func TestTransformRequestValidate(t *testing.T) {
	ok := TransformRequest{WebhookURL: "https://example.com/hook"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	bad := TransformRequest{WebhookURL: "ftp://example.com"}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error for non-http webhook URL")
	}
}
