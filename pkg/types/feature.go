// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Feature is one item's extracted output: a fixed-shape numeric array in
// row-major order. Shape and Data are kept separate so the store can
// persist the raw values as a compact blob while keeping the shape
// queryable.
type Feature struct {
	Shape []int     `json:"shape" yaml:"shape"`
	Data  []float32 `json:"data" yaml:"data"`
}

// Elems returns the number of elements implied by the shape.
func (f Feature) Elems() int {
	if len(f.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// Validate checks that the shape is well formed and consistent with the
// data length.
func (f Feature) Validate() error {
	if len(f.Shape) == 0 {
		return fmt.Errorf("feature has no shape")
	}
	for i, d := range f.Shape {
		if d <= 0 {
			return fmt.Errorf("feature dimension %d is %d, want > 0", i, d)
		}
	}
	if f.Elems() != len(f.Data) {
		return fmt.Errorf("feature shape %v implies %d elements, got %d", f.Shape, f.Elems(), len(f.Data))
	}
	return nil
}

// Squeeze removes the leading batch dimension. The model is always
// invoked with a batch of exactly one item, so a first dimension other
// than 1 indicates a collaborator returning something unexpected and is
// an error rather than a silent reshape.
func (f Feature) Squeeze() (Feature, error) {
	if err := f.Validate(); err != nil {
		return Feature{}, err
	}
	if f.Shape[0] != 1 {
		return Feature{}, fmt.Errorf("expected leading batch dimension of 1, got shape %v", f.Shape)
	}
	if len(f.Shape) == 1 {
		// A bare [1] squeezes to a scalar-like [1]; keep one dimension.
		return f, nil
	}
	squeezed := Feature{
		Shape: append([]int(nil), f.Shape[1:]...),
		Data:  f.Data,
	}
	return squeezed, nil
}

// Equal reports whether two features have identical shape and values.
func (f Feature) Equal(other Feature) bool {
	if len(f.Shape) != len(other.Shape) || len(f.Data) != len(other.Data) {
		return false
	}
	for i, d := range f.Shape {
		if other.Shape[i] != d {
			return false
		}
	}
	for i, v := range f.Data {
		if other.Data[i] != v {
			return false
		}
	}
	return true
}
