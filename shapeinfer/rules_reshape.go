package shapeinfer

import (
	"slices"
)

func reshapeRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*ReshapeAttrs](node)
	input := inputs[0]
	if input.IsUnknown() {
		// Only a target made of literal dimensions can be resolved without the input.
		if slices.ContainsFunc(attrs.Shape, func(code int) bool { return code <= 0 }) {
			return unknownOutputs(1), nil
		}
		return []Shape{MakeShape(attrs.Shape...)}, nil
	}
	dims, err := reshapeDims(input.dims, attrs.Shape)
	if err != nil {
		return nil, err
	}
	return []Shape{{dims: dims}}, nil
}

// reshapeDims returns the dimensions of the reshape of src by target, see ReshapeAttrs.
//
// A cursor walks over src: literal dimensions and 0 consume one source dimension, -1 consumes none,
// -2 consumes the rest, -3 consumes two and -4 consumes one. Unknown (0) source dimensions propagate to the
// dimensions derived from them, and the element count is only checked when all dimensions are known.
func reshapeDims(src, target []int) ([]int, error) {
	dims := make([]int, 0, len(target)+len(src))
	inferAt := -1
	srcIdx := 0
	for ii := 0; ii < len(target); ii++ {
		code := target[ii]
		switch {
		case code > 0:
			dims = append(dims, code)
			srcIdx++

		case code == ReshapeCopy:
			if srcIdx >= len(src) {
				return nil, Conflictf(srcIdx+1, len(src),
					"reshape target %v copies (0) input axis %d, but input has rank %d", target, srcIdx, len(src))
			}
			dims = append(dims, src[srcIdx])
			srcIdx++

		case code == ReshapeInfer:
			if inferAt >= 0 {
				return nil, Conflictf(2, 1, "reshape target %v has more than one -1", target)
			}
			inferAt = len(dims)
			dims = append(dims, -1)

		case code == ReshapeCopyRest:
			if srcIdx < len(src) {
				dims = append(dims, src[srcIdx:]...)
			}
			srcIdx = len(src)

		case code == ReshapeMergeTwo:
			if srcIdx+1 >= len(src) {
				return nil, Conflictf(srcIdx+2, len(src),
					"reshape target %v merges (-3) input axes %d and %d, but input has rank %d",
					target, srcIdx, srcIdx+1, len(src))
			}
			dims = append(dims, src[srcIdx]*src[srcIdx+1])
			srcIdx += 2

		case code == ReshapeSplitInto:
			if ii+2 >= len(target) {
				return nil, Conflictf(len(target), ii+3,
					"reshape target %v splits (-4) at position %d, but it is not followed by two dimensions", target, ii)
			}
			if srcIdx >= len(src) {
				return nil, Conflictf(srcIdx+1, len(src),
					"reshape target %v splits (-4) input axis %d, but input has rank %d", target, srcIdx, len(src))
			}
			split, err := splitDim(src[srcIdx], target[ii+1], target[ii+2])
			if err != nil {
				return nil, err
			}
			dims = append(dims, split[0], split[1])
			ii += 2
			srcIdx++

		default:
			return nil, Conflictf(code, ReshapeSplitInto, "reshape target %v has invalid code %d", target, code)
		}
	}

	srcSize := product(src)
	if inferAt >= 0 {
		dims[inferAt] = 1
		known := product(dims)
		switch {
		case srcSize == 0 || known == 0:
			dims[inferAt] = 0
		case srcSize%known != 0:
			return nil, Conflictf(srcSize, known,
				"can't infer -1 of reshape target %v: %d elements are not divisible by %d", target, srcSize, known)
		default:
			dims[inferAt] = srcSize / known
		}
	}
	if size := product(dims); srcSize != 0 && size != 0 && size != srcSize {
		return nil, Conflictf(size, srcSize,
			"reshape of %v to %v changes the number of elements from %d to %d", src, dims, srcSize, size)
	}
	return dims, nil
}

// splitDim splits dim into two dimensions whose product is dim. One of them may be -1, and
// it's inferred.
func splitDim(dim, first, second int) ([2]int, error) {
	split := [2]int{first, second}
	for _, d := range split {
		if d != ReshapeInfer && d <= 0 {
			return split, Conflictf(d, 1, "split (-4) of dimension %d into (%d, %d): invalid dimension %d",
				dim, first, second, d)
		}
	}
	if first == ReshapeInfer && second == ReshapeInfer {
		return split, Conflictf(ReshapeInfer, 1, "split (-4) of dimension %d into (-1, -1): at most one can be -1", dim)
	}
	for ii, d := range split {
		if d != ReshapeInfer {
			continue
		}
		other := split[1-ii]
		switch {
		case dim == 0:
			split[ii] = 0
		case dim%other != 0:
			return split, Conflictf(dim, other, "split (-4) of dimension %d into (%d, %d): %d is not divisible by %d",
				dim, first, second, dim, other)
		default:
			split[ii] = dim / other
		}
	}
	if dim != 0 && split[0]*split[1] != dim {
		return split, Conflictf(split[0]*split[1], dim, "split (-4) of dimension %d into (%d, %d): product is %d",
			dim, first, second, split[0]*split[1])
	}
	return split, nil
}
