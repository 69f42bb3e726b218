package model

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by this module matches exactly one of
// them through errors.Is.
var (
	ErrShape        = errors.New("shape mismatch")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrIO           = errors.New("i/o failure")
)

// NoLayer marks a ShapeError or TypeMismatchError that is not tied to a layer.
const NoLayer = -1

// ShapeError reports a dimensionality problem in the model data.
type ShapeError struct {
	Kind    string // Kind of error (e.g., "rank", "chain", "bias_length")
	Layer   int    // Primary layer index, or NoLayer
	Other   int    // Secondary layer index (for chain errors), or NoLayer
	Details string // Expected vs. actual shape
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	switch {
	case e.Other != NoLayer && e.Layer != NoLayer:
		return fmt.Sprintf("%s: layers %d and %d: %s", e.Kind, e.Layer, e.Other, e.Details)
	case e.Layer != NoLayer:
		return fmt.Sprintf("%s: layer %d: %s", e.Kind, e.Layer, e.Details)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Details)
	}
}

// Is reports ErrShape as the class of e.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

// AtLayer returns a copy of e attributed to layer i.
func (e *ShapeError) AtLayer(i int) *ShapeError {
	c := *e
	c.Layer = i
	return &c
}

// NewShapeError builds a ShapeError for a single layer (NoLayer if none).
func NewShapeError(kind string, layer int, format string, args ...any) *ShapeError {
	return &ShapeError{
		Kind:    kind,
		Layer:   layer,
		Other:   NoLayer,
		Details: fmt.Sprintf(format, args...),
	}
}

// TypeMismatchError reports a non-integer value where an integer is required.
type TypeMismatchError struct {
	Source string // "weights" or "biases"
	Layer  int    // Layer index, or NoLayer
	Index  []int  // Position of the value inside the layer
	Value  string // Offending value as found in the input
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	if e.Layer == NoLayer {
		return fmt.Sprintf("%s: expected integer, got %s", e.Source, e.Value)
	}
	return fmt.Sprintf("%s layer %d at %v: expected integer, got %s", e.Source, e.Layer, e.Index, e.Value)
}

// Is reports ErrTypeMismatch as the class of e.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// IOError reports a failure to read an input or write the output.
type IOError struct {
	Op   string // "read", "write", "create", "rename"
	Path string // File path, empty for plain writers
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports ErrIO as the class of e.
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
