package shapeinfer

import (
	"github.com/gomlx/gomlx/pkg/support/xslices"
)

// This file implements the rules of the dense, elementwise and axis manipulation operators.
//
// Unknown dimensions are 0, so products of dimensions naturally propagate them.

// unknownOutputs returns n totally unknown shapes.
func unknownOutputs(n int) []Shape {
	return make([]Shape, n)
}

// normalizeAxis converts a possibly negative axis to the range [0, rank).
func normalizeAxis(axis, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, Conflictf(axis, rank, "axis %d out of range for rank %d", axis, rank)
	}
	return adjusted, nil
}

// sumDims returns the sum of the dimensions, or 0 (unknown) if any of them is unknown.
func sumDims(dims []int) int {
	sum := 0
	for _, dim := range dims {
		if dim == 0 {
			return 0
		}
		sum += dim
	}
	return sum
}

func variableRule(node *Node, _ []Shape) ([]Shape, error) {
	return []Shape{attrsAs[*VariableAttrs](node).Shape}, nil
}

func unaryRule(_ *Node, inputs []Shape) ([]Shape, error) {
	return []Shape{inputs[0]}, nil
}

func binaryRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*BinaryAttrs](node)
	lhs, rhs := inputs[0], inputs[1]
	if !attrs.Broadcast {
		output, err := lhs.Refine(rhs)
		if err != nil {
			return nil, err
		}
		return []Shape{output}, nil
	}

	if lhs.IsUnknown() || rhs.IsUnknown() {
		return unknownOutputs(1), nil
	}
	rank := max(lhs.Rank(), rhs.Rank())
	dims := make([]int, rank)
	for axis := range rank {
		lhsDim, rhsDim := 1, 1
		if offset := axis - (rank - lhs.Rank()); offset >= 0 {
			lhsDim = lhs.dims[offset]
		}
		if offset := axis - (rank - rhs.Rank()); offset >= 0 {
			rhsDim = rhs.dims[offset]
		}
		switch {
		case lhsDim == rhsDim, rhsDim == 1:
			dims[axis] = lhsDim
		case lhsDim == 1:
			dims[axis] = rhsDim
		case lhsDim == 0:
			dims[axis] = rhsDim
		case rhsDim == 0:
			dims[axis] = lhsDim
		default:
			return nil, axisConflictf(axis, rhsDim, lhsDim,
				"can't broadcast %s with %s: axis %d has dimensions %d and %d", lhs, rhs, axis, lhsDim, rhsDim)
		}
	}
	return []Shape{{dims: dims}}, nil
}

func denseRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*DenseAttrs](node)
	input := inputs[0]
	outputs := unknownOutputs(node.NumOutputs())
	if attrs.UseBias {
		outputs[OutputBias] = MakeShape(attrs.Units)
	}
	if input.IsUnknown() {
		outputs[OutputWeight] = MakeShape(attrs.Units, 0)
		return outputs, nil
	}
	dims := input.Dims()
	inFeatures := xslices.Last(dims)
	xslices.SetLast(dims, attrs.Units)
	outputs[OutputData] = Shape{dims: dims}
	outputs[OutputWeight] = MakeShape(attrs.Units, inFeatures)
	return outputs, nil
}

func flattenRule(_ *Node, inputs []Shape) ([]Shape, error) {
	input := inputs[0]
	if input.IsUnknown() {
		return unknownOutputs(1), nil
	}
	return []Shape{MakeShape(input.dims[0], product(input.dims[1:]))}, nil
}

func concatenateRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*ConcatenateAttrs](node)

	// Rank and non-concatenated dimensions are taken from all known inputs.
	var merged Shape
	for ii, input := range inputs {
		if input.IsUnknown() {
			continue
		}
		if merged.IsUnknown() {
			merged = input
			continue
		}
		if input.Rank() != merged.Rank() {
			return nil, Conflictf(input.Rank(), merged.Rank(),
				"input #%d has rank %d, but previous inputs have rank %d", ii, input.Rank(), merged.Rank())
		}
	}
	if merged.IsUnknown() {
		return unknownOutputs(1), nil
	}
	axis, err := normalizeAxis(attrs.Axis, merged.Rank())
	if err != nil {
		return nil, err
	}

	dims := merged.Dims()
	axisDims := make([]int, len(inputs))
	for ii, input := range inputs {
		if input.IsUnknown() {
			continue
		}
		axisDims[ii] = input.dims[axis]
		for otherAxis, dim := range input.dims {
			if otherAxis == axis || dim == 0 {
				continue
			}
			if dims[otherAxis] == 0 {
				dims[otherAxis] = dim
			} else if dims[otherAxis] != dim {
				return nil, axisConflictf(otherAxis, dim, dims[otherAxis],
					"input #%d has dimension %d on (non-concatenated) axis %d, but other inputs have %d",
					ii, dim, otherAxis, dims[otherAxis])
			}
		}
	}
	dims[axis] = sumDims(axisDims)
	return []Shape{{dims: dims}}, nil
}

func splitRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*SplitAttrs](node)
	input := inputs[0]
	numOutputs := node.NumOutputs()
	if input.IsUnknown() {
		return unknownOutputs(numOutputs), nil
	}
	axis, err := normalizeAxis(attrs.Axis, input.Rank())
	if err != nil {
		return nil, err
	}
	axisDim := input.dims[axis]

	sizes := make([]int, numOutputs)
	switch {
	case attrs.Sections > 0:
		if axisDim != 0 {
			if axisDim%attrs.Sections != 0 {
				return nil, axisConflictf(axis, axisDim, attrs.Sections,
					"axis %d of dimension %d can't be split into %d equal sections", axis, axisDim, attrs.Sections)
			}
			xslices.FillSlice(sizes, axisDim/attrs.Sections)
		}

	case len(attrs.Sizes) > 0:
		copy(sizes, attrs.Sizes)
		if total := sumDims(sizes); axisDim != 0 && total != axisDim {
			return nil, axisConflictf(axis, total, axisDim,
				"split sizes %v sum to %d, but axis %d has dimension %d", attrs.Sizes, total, axis, axisDim)
		}

	default:
		previous := 0
		for ii, index := range attrs.Indices {
			sizes[ii] = index - previous
			previous = index
		}
		if axisDim != 0 {
			if previous >= axisDim {
				return nil, axisConflictf(axis, previous, axisDim,
					"split index %d out of range for axis %d of dimension %d", previous, axis, axisDim)
			}
			sizes[numOutputs-1] = axisDim - previous
		}
	}

	outputs := make([]Shape, numOutputs)
	for ii, size := range sizes {
		dims := input.Dims()
		dims[axis] = size
		outputs[ii] = Shape{dims: dims}
	}
	return outputs, nil
}

func batchNormRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*BatchNormAttrs](node)
	input := inputs[0]
	if input.IsUnknown() {
		return unknownOutputs(node.NumOutputs()), nil
	}
	axis, err := normalizeAxis(attrs.Axis, input.Rank())
	if err != nil {
		return nil, err
	}
	param := MakeShape(input.dims[axis])
	return []Shape{input, param, param, param, param}, nil
}
