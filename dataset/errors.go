package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrFilesystem marks failures enumerating directories or opening files.
	ErrFilesystem = errors.New("filesystem error")
	// ErrDecode marks files that are not decodable raster images.
	ErrDecode = errors.New("decode error")
	// ErrCategory marks a category directory or label outside the valid range.
	ErrCategory = errors.New("invalid category")
)

// LoadError reports which path failed and why. Kind is one of the sentinels
// above; errors.Is matches both Kind and the underlying cause.
type LoadError struct {
	Path string
	Kind error
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
