package shapeinfer

// Rules of the 2D convolution and pooling operators. Their data inputs must have rank 4, with the
// channels and spatial axes given by the Layout.

// window holds the per spatial axis configuration of a convolution or pooling.
type window struct {
	kernel, strides, padding, dilation [2]int
}

// orOne returns the value with zeros replaced by the default of 1.
func orOne(values [2]int) [2]int {
	return [2]int{max(values[0], 1), max(values[1], 1)}
}

// checkRank4 returns an error if the known input is not of rank 4.
func checkRank4(input Shape, layout Layout) error {
	if input.Rank() != 4 {
		return Conflictf(input.Rank(), 4, "input shape %s must have rank 4 (layout %s)", input, layout)
	}
	return nil
}

// slidingDim returns the output dimension of a sliding window over a spatial axis of dimension inDim.
// Unknown (0) dimensions propagate.
func slidingDim(axis, inDim, kernel, stride, padding, dilation int, ceilMode bool) (int, error) {
	if inDim == 0 {
		return 0, nil
	}
	effectiveKernel := dilation*(kernel-1) + 1
	span := inDim + 2*padding - effectiveKernel
	if span < 0 {
		return 0, axisConflictf(axis, inDim+2*padding, effectiveKernel,
			"padded dimension %d on axis %d is smaller than the (dilated) window %d",
			inDim+2*padding, axis, effectiveKernel)
	}
	if ceilMode {
		return (span+stride-1)/stride + 1, nil
	}
	return span/stride + 1, nil
}

// spatialOutputs computes the spatial output dimensions of a sliding window, and returns the
// output dimensions with the given output channels (or the input channels if channels is 0).
func spatialOutputs(input Shape, layout Layout, w window, channels int, ceilMode bool) ([]int, error) {
	dims := input.Dims()
	strides, dilation := orOne(w.strides), orOne(w.dilation)
	for ii, axis := range layout.SpatialAxes() {
		outDim, err := slidingDim(axis, dims[axis], w.kernel[ii], strides[ii], w.padding[ii], dilation[ii], ceilMode)
		if err != nil {
			return nil, err
		}
		dims[axis] = outDim
	}
	if channels > 0 {
		dims[layout.ChannelsAxis()] = channels
	}
	return dims, nil
}

// inChannels returns the number of input channels (or 0 if unknown), checking the input rank and
// that the channels are divisible by groups.
func inChannels(input Shape, layout Layout, groups int) (int, error) {
	if input.IsUnknown() {
		return 0, nil
	}
	if err := checkRank4(input, layout); err != nil {
		return 0, err
	}
	axis := layout.ChannelsAxis()
	channels := input.dims[axis]
	if channels != 0 && channels%groups != 0 {
		return 0, axisConflictf(axis, channels, groups,
			"input channels %d on axis %d must be divisible by groups %d", channels, axis, groups)
	}
	return channels, nil
}

func conv2DRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*Conv2DAttrs](node)
	input := inputs[0]
	groups := max(attrs.Groups, 1)
	outputs := unknownOutputs(node.NumOutputs())
	if attrs.UseBias {
		outputs[OutputBias] = MakeShape(attrs.Channels)
	}
	numIn, err := inChannels(input, attrs.Layout, groups)
	if err != nil {
		return nil, err
	}
	outputs[OutputWeight] = MakeShape(attrs.Channels, numIn/groups, attrs.KernelSize[0], attrs.KernelSize[1])
	if input.IsUnknown() {
		return outputs, nil
	}
	w := window{kernel: attrs.KernelSize, strides: attrs.Strides, padding: attrs.Padding, dilation: attrs.Dilation}
	dims, err := spatialOutputs(input, attrs.Layout, w, attrs.Channels, false)
	if err != nil {
		return nil, err
	}
	outputs[OutputData] = Shape{dims: dims}
	return outputs, nil
}

func conv2DTransposeRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*Conv2DTransposeAttrs](node)
	input := inputs[0]
	groups := max(attrs.Groups, 1)
	outputs := unknownOutputs(node.NumOutputs())
	if attrs.UseBias {
		outputs[OutputBias] = MakeShape(attrs.Channels)
	}
	numIn, err := inChannels(input, attrs.Layout, groups)
	if err != nil {
		return nil, err
	}
	outputs[OutputWeight] = MakeShape(numIn, attrs.Channels/groups, attrs.KernelSize[0], attrs.KernelSize[1])
	if input.IsUnknown() {
		return outputs, nil
	}

	dims := input.Dims()
	strides, dilation := orOne(attrs.Strides), orOne(attrs.Dilation)
	for ii, axis := range attrs.Layout.SpatialAxes() {
		if dims[axis] == 0 {
			continue
		}
		outDim := (dims[axis]-1)*strides[ii] - 2*attrs.Padding[ii] +
			dilation[ii]*(attrs.KernelSize[ii]-1) + 1 + attrs.OutputPadding[ii]
		if outDim <= 0 {
			return nil, axisConflictf(axis, outDim, 1,
				"transposed convolution of dimension %d on axis %d yields non-positive dimension %d",
				dims[axis], axis, outDim)
		}
		dims[axis] = outDim
	}
	dims[attrs.Layout.ChannelsAxis()] = attrs.Channels
	outputs[OutputData] = Shape{dims: dims}
	return outputs, nil
}

func pool2DRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*Pool2DAttrs](node)
	input := inputs[0]
	if input.IsUnknown() {
		return unknownOutputs(1), nil
	}
	if err := checkRank4(input, attrs.Layout); err != nil {
		return nil, err
	}
	w := window{kernel: attrs.PoolSize, strides: attrs.Strides, padding: attrs.Padding}
	dims, err := spatialOutputs(input, attrs.Layout, w, 0, attrs.CeilMode)
	if err != nil {
		return nil, err
	}
	return []Shape{{dims: dims}}, nil
}

func globalPool2DRule(node *Node, inputs []Shape) ([]Shape, error) {
	attrs := attrsAs[*GlobalPool2DAttrs](node)
	input := inputs[0]
	if input.IsUnknown() {
		return unknownOutputs(1), nil
	}
	if err := checkRank4(input, attrs.Layout); err != nil {
		return nil, err
	}
	dims := input.Dims()
	for _, axis := range attrs.Layout.SpatialAxes() {
		dims[axis] = 1
	}
	return []Shape{{dims: dims}}, nil
}
