package domain

import "time"

// UsageLog accounts for one completed transform.
type UsageLog struct {
	UserID          string
	ImageID         string
	PixelsProcessed int64
	BytesWritten    int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
