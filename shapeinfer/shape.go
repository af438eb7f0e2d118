package shapeinfer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/shapeinfer/internal/togomlx"
)

// Shape is the shape of a tensor: an ordered list of dimensions.
//
// A Shape with no dimensions is totally unknown, and a dimension with value 0 is unknown.
// Shapes are immutable values: the dimensions slice is never shared with the caller.
type Shape struct {
	dims []int
}

// MakeShape returns a Shape with the given dimensions. A 0 dimension means unknown.
//
// It panics if any dimension is negative.
func MakeShape(dims ...int) Shape {
	for axis, dim := range dims {
		if dim < 0 {
			exceptions.Panicf("shapeinfer.MakeShape(%v): negative dimension %d for axis %d", dims, dim, axis)
		}
	}
	return Shape{dims: slices.Clone(dims)}
}

// UnknownShape returns the totally unknown shape.
func UnknownShape() Shape {
	return Shape{}
}

// ShapeFromGoMLX converts a GoMLX shape. The dtype is dropped.
func ShapeFromGoMLX(shape shapes.Shape) Shape {
	return MakeShape(togomlx.Dims(shape)...)
}

// Rank returns the number of dimensions, 0 for a totally unknown shape.
func (s Shape) Rank() int { return len(s.dims) }

// Dims returns a copy of the dimensions.
func (s Shape) Dims() []int { return slices.Clone(s.dims) }

// Dim returns the dimension of the given axis. Negative axes count from the end.
// Like slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += len(s.dims)
	}
	if adjusted < 0 || adjusted >= len(s.dims) {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for shape %s", axis, s)
	}
	return s.dims[adjusted]
}

// IsUnknown returns whether the shape is totally unknown (the rank is not known).
func (s Shape) IsUnknown() bool { return len(s.dims) == 0 }

// IsFullyKnown returns whether the rank and every dimension are known.
func (s Shape) IsFullyKnown() bool {
	return len(s.dims) > 0 && !slices.Contains(s.dims, 0)
}

// Size returns the number of elements. It returns false if any dimension is unknown.
func (s Shape) Size() (int, bool) {
	if !s.IsFullyKnown() {
		return 0, false
	}
	return product(s.dims), true
}

// Equal returns whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s.dims, other.dims)
}

// Refine combines s with a newly computed shape. They must agree on every dimension known to both,
// and the result holds the union of the known dimensions.
//
// It returns a ShapeConflict error if the ranks differ or if any dimension known to both differs.
func (s Shape) Refine(other Shape) (Shape, error) {
	if other.IsUnknown() {
		return s, nil
	}
	if s.IsUnknown() {
		return other, nil
	}
	if len(s.dims) != len(other.dims) {
		return Shape{}, Conflictf(len(other.dims), len(s.dims), "rank of %s doesn't match known shape %s", other, s)
	}
	refined := slices.Clone(s.dims)
	for axis, dim := range other.dims {
		switch {
		case dim == 0:
			continue
		case refined[axis] == 0:
			refined[axis] = dim
		case refined[axis] != dim:
			return Shape{}, axisConflictf(axis, dim, refined[axis], "axis %d of %s doesn't match known shape %s", axis, other, s)
		}
	}
	return Shape{dims: refined}, nil
}

// GoMLX returns the GoMLX shape for a fully known shape with the given dtype.
func (s Shape) GoMLX(dtype dtypes.DType) (shapes.Shape, error) {
	return togomlx.Shape(dtype, s.dims)
}

// String implements fmt.Stringer. Unknown dimensions are printed as "?".
func (s Shape) String() string {
	if s.IsUnknown() {
		return "(?)"
	}
	parts := make([]string, len(s.dims))
	for ii, dim := range s.dims {
		if dim == 0 {
			parts[ii] = "?"
		} else {
			parts[ii] = fmt.Sprintf("%d", dim)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// product of the dimensions. Unknown dimensions make it 0.
func product(dims []int) int {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	return size
}
