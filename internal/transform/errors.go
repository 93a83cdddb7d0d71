package transform

import "fmt"

// LoadError reports a source that could not be read or decoded into a
// raster. The path is kept for diagnostics; Err carries the underlying cause.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Error reports a failure in one named stage of the transform pipeline.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform stage %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
