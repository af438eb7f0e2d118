// Package togomlx contains conversion utilities between inferred shapes and GoMLX shapes.
package togomlx

import (
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Shape converts inferred dimensions and a dtype to a GoMLX shapes.Shape.
//
// GoMLX shapes have no notion of an unknown dimension, so it fails if dims is empty
// (rank unknown) or if any dimension is 0 (unknown).
func Shape(dtype dtypes.DType, dims []int) (shape shapes.Shape, err error) {
	if dtype == dtypes.InvalidDType {
		err = errors.New("cannot convert shape with an invalid dtype to GoMLX")
		return
	}
	if len(dims) == 0 {
		err = errors.New("cannot convert a shape with unknown rank to GoMLX")
		return
	}
	for axis, dim := range dims {
		if dim <= 0 {
			err = errors.Errorf("cannot convert shape %v to GoMLX: axis %d has unknown dimension", dims, axis)
			return
		}
	}
	shape = shapes.Make(dtype, dims...)
	return
}

// Dims returns the dimensions of a GoMLX shape.
//
// GoMLX dynamic dimensions (negative values) are mapped to 0, the unknown dimension.
func Dims(shape shapes.Shape) []int {
	dims := slices.Clone(shape.Dimensions)
	for axis, dim := range dims {
		if dim < 0 {
			dims[axis] = 0
		}
	}
	return dims
}
