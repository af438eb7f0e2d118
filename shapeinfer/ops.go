package shapeinfer

import (
	"fmt"
	"slices"
)

// OpKind identifies the operator of a node, and it is the key of the rules Registry.
type OpKind int

const (
	OpInvalid OpKind = iota
	OpVariable
	OpElementwiseUnary
	OpElementwiseBinary
	OpDense
	OpFlatten
	OpConcatenate
	OpSplit
	OpBatchNorm
	OpConv2D
	OpConv2DTranspose
	OpMaxPool2D
	OpAvgPool2D
	OpGlobalMaxPool2D
	OpGlobalAvgPool2D
	OpReshape

	// OpFirstCustom is the first OpKind value available for operators defined outside this package.
	OpFirstCustom OpKind = 1000
)

var opNames = map[OpKind]string{
	OpInvalid:           "Invalid",
	OpVariable:          "Variable",
	OpElementwiseUnary:  "ElementwiseUnary",
	OpElementwiseBinary: "ElementwiseBinary",
	OpDense:             "Dense",
	OpFlatten:           "Flatten",
	OpConcatenate:       "Concatenate",
	OpSplit:             "Split",
	OpBatchNorm:         "BatchNorm",
	OpConv2D:            "Conv2D",
	OpConv2DTranspose:   "Conv2DTranspose",
	OpMaxPool2D:         "MaxPool2D",
	OpAvgPool2D:         "AvgPool2D",
	OpGlobalMaxPool2D:   "GlobalMaxPool2D",
	OpGlobalAvgPool2D:   "GlobalAvgPool2D",
	OpReshape:           "Reshape",
}

// String implements fmt.Stringer.
func (op OpKind) String() string {
	if name, found := opNames[op]; found {
		return name
	}
	if op >= OpFirstCustom {
		return fmt.Sprintf("CustomOp(%d)", int(op))
	}
	return fmt.Sprintf("OpKind(%d)", int(op))
}

// Attributes are the typed, already validated, configuration of a node.
// Each operator kind has its own Attributes implementation.
type Attributes interface {
	// Op returns the operator kind, used to select the shape rule.
	Op() OpKind

	// NumOutputs returns the output arity of the node, always >= 1.
	NumOutputs() int

	// Validate checks the attributes and the number of inputs of the node.
	// It is called by NewGraph.
	Validate(numInputs int) error
}

// OutputNamer is optionally implemented by Attributes of operators with auxiliary outputs.
// OutputNames returns one name per output; the primary output is named "".
//
// An auxiliary output named "bias" of a node "fc" can be looked up as "fc_bias" in the Result.
type OutputNamer interface {
	OutputNames() []string
}

func checkNumInputs(op OpKind, numInputs, want int) error {
	if numInputs != want {
		return invalidGraphf("%s takes %d input(s), got %d", op, want, numInputs)
	}
	return nil
}

// VariableAttrs configures a Variable: a graph input whose shape is supplied by the caller.
// Shape may be unknown or partially unknown.
type VariableAttrs struct {
	Shape Shape
}

// Variable returns the attributes of a Variable with the declared shape.
func Variable(shape Shape) *VariableAttrs { return &VariableAttrs{Shape: shape} }

func (a *VariableAttrs) Op() OpKind      { return OpVariable }
func (a *VariableAttrs) NumOutputs() int { return 1 }
func (a *VariableAttrs) Validate(numInputs int) error {
	return checkNumInputs(OpVariable, numInputs, 0)
}

// UnaryAttrs configures an elementwise unary operator (exp, negative, multiply by a scalar, ...).
// Name is informative only.
type UnaryAttrs struct {
	Name string
}

// Unary returns the attributes of the named elementwise unary operator.
func Unary(name string) *UnaryAttrs { return &UnaryAttrs{Name: name} }

func (a *UnaryAttrs) Op() OpKind      { return OpElementwiseUnary }
func (a *UnaryAttrs) NumOutputs() int { return 1 }
func (a *UnaryAttrs) Validate(numInputs int) error {
	return checkNumInputs(OpElementwiseUnary, numInputs, 1)
}

// BinaryAttrs configures an elementwise binary operator.
// If Broadcast is false both operands must have the same shape, otherwise the usual
// (numpy) broadcasting rules apply.
type BinaryAttrs struct {
	Name      string
	Broadcast bool
}

// Binary returns the attributes of the named elementwise binary operator, with same-shape operands.
func Binary(name string) *BinaryAttrs { return &BinaryAttrs{Name: name} }

// WithBroadcast enables broadcasting of the operands.
func (a *BinaryAttrs) WithBroadcast(broadcast bool) *BinaryAttrs {
	a.Broadcast = broadcast
	return a
}

func (a *BinaryAttrs) Op() OpKind      { return OpElementwiseBinary }
func (a *BinaryAttrs) NumOutputs() int { return 1 }
func (a *BinaryAttrs) Validate(numInputs int) error {
	return checkNumInputs(OpElementwiseBinary, numInputs, 2)
}

// Output indices of Dense, Conv2D and Conv2DTranspose.
const (
	OutputData   = 0
	OutputWeight = 1
	OutputBias   = 2
)

// DenseAttrs configures a fully connected layer.
type DenseAttrs struct {
	Units   int
	UseBias bool
}

// Dense returns the attributes of a fully connected layer with bias.
func Dense(units int) *DenseAttrs { return &DenseAttrs{Units: units, UseBias: true} }

// WithBias sets whether the layer has a bias output.
func (a *DenseAttrs) WithBias(useBias bool) *DenseAttrs {
	a.UseBias = useBias
	return a
}

func (a *DenseAttrs) Op() OpKind { return OpDense }

func (a *DenseAttrs) NumOutputs() int {
	if a.UseBias {
		return 3
	}
	return 2
}

func (a *DenseAttrs) OutputNames() []string {
	return []string{"", "weight", "bias"}[:a.NumOutputs()]
}

func (a *DenseAttrs) Validate(numInputs int) error {
	if a.Units <= 0 {
		return invalidGraphf("Dense units must be > 0, got %d", a.Units)
	}
	return checkNumInputs(OpDense, numInputs, 1)
}

// FlattenAttrs configures a Flatten: it keeps the first axis and collapses all others.
type FlattenAttrs struct{}

// Flatten returns the attributes of a Flatten.
func Flatten() *FlattenAttrs { return &FlattenAttrs{} }

func (a *FlattenAttrs) Op() OpKind      { return OpFlatten }
func (a *FlattenAttrs) NumOutputs() int { return 1 }
func (a *FlattenAttrs) Validate(numInputs int) error {
	return checkNumInputs(OpFlatten, numInputs, 1)
}

// ConcatenateAttrs configures a concatenation. Axis can be negative, counting from the end.
type ConcatenateAttrs struct {
	Axis int
}

// Concatenate returns the attributes of a concatenation on the last axis.
func Concatenate() *ConcatenateAttrs { return &ConcatenateAttrs{Axis: -1} }

// WithAxis sets the concatenation axis.
func (a *ConcatenateAttrs) WithAxis(axis int) *ConcatenateAttrs {
	a.Axis = axis
	return a
}

func (a *ConcatenateAttrs) Op() OpKind      { return OpConcatenate }
func (a *ConcatenateAttrs) NumOutputs() int { return 1 }
func (a *ConcatenateAttrs) Validate(numInputs int) error {
	if numInputs < 1 {
		return invalidGraphf("Concatenate requires at least one input")
	}
	return nil
}

// SplitAttrs configures a split along Axis. Exactly one of the following must be set:
//
//   - Sections: split into that many equal pieces.
//   - Sizes: explicit size of each piece, they must sum to the axis dimension.
//   - Indices: strictly increasing split points, as in numpy.split; the last piece takes the remainder.
type SplitAttrs struct {
	Sections int
	Sizes    []int
	Indices  []int
	Axis     int
}

// SplitSections splits axis 1 into the given number of equal pieces.
func SplitSections(sections int) *SplitAttrs { return &SplitAttrs{Sections: sections, Axis: 1} }

// SplitSizes splits axis 1 into pieces of the given sizes.
func SplitSizes(sizes ...int) *SplitAttrs { return &SplitAttrs{Sizes: slices.Clone(sizes), Axis: 1} }

// SplitIndices splits axis 1 at the given indices.
func SplitIndices(indices ...int) *SplitAttrs {
	return &SplitAttrs{Indices: slices.Clone(indices), Axis: 1}
}

// WithAxis sets the split axis; it can be negative.
func (a *SplitAttrs) WithAxis(axis int) *SplitAttrs {
	a.Axis = axis
	return a
}

func (a *SplitAttrs) Op() OpKind { return OpSplit }

func (a *SplitAttrs) NumOutputs() int {
	switch {
	case a.Sections > 0:
		return a.Sections
	case len(a.Sizes) > 0:
		return len(a.Sizes)
	default:
		return len(a.Indices) + 1
	}
}

func (a *SplitAttrs) Validate(numInputs int) error {
	set := 0
	if a.Sections != 0 {
		set++
		if a.Sections < 0 {
			return invalidGraphf("Split sections must be > 0, got %d", a.Sections)
		}
	}
	if len(a.Sizes) > 0 {
		set++
		for ii, size := range a.Sizes {
			if size <= 0 {
				return invalidGraphf("Split size #%d must be > 0, got %d", ii, size)
			}
		}
	}
	if len(a.Indices) > 0 {
		set++
		for ii, index := range a.Indices {
			if index <= 0 || (ii > 0 && index <= a.Indices[ii-1]) {
				return invalidGraphf("Split indices must be strictly increasing and > 0, got %v", a.Indices)
			}
		}
	}
	if set != 1 {
		return invalidGraphf("Split requires exactly one of sections, sizes or indices, got %d", set)
	}
	return checkNumInputs(OpSplit, numInputs, 1)
}

// Output indices of BatchNorm.
const (
	OutputGamma = 1 + iota
	OutputBeta
	OutputMovingMean
	OutputMovingVar
)

// BatchNormAttrs configures a batch normalization over the channels Axis.
// Epsilon, Center and Scale don't affect shapes.
type BatchNormAttrs struct {
	Axis    int
	Epsilon float64
	Center  bool
	Scale   bool
}

// BatchNorm returns the attributes of a batch normalization over the last axis.
func BatchNorm() *BatchNormAttrs {
	return &BatchNormAttrs{Axis: -1, Epsilon: 1e-5, Center: true, Scale: true}
}

// WithAxis sets the channels axis; it can be negative.
func (a *BatchNormAttrs) WithAxis(axis int) *BatchNormAttrs {
	a.Axis = axis
	return a
}

func (a *BatchNormAttrs) Op() OpKind      { return OpBatchNorm }
func (a *BatchNormAttrs) NumOutputs() int { return 5 }
func (a *BatchNormAttrs) OutputNames() []string {
	return []string{"", "gamma", "beta", "moving_mean", "moving_var"}
}
func (a *BatchNormAttrs) Validate(numInputs int) error {
	return checkNumInputs(OpBatchNorm, numInputs, 1)
}

// Conv2DAttrs configures a 2D convolution.
//
// Zero values of Strides, Dilation and Groups select the default of 1.
// The weight output is laid out as [channels, in_channels/groups, kernel_height, kernel_width].
type Conv2DAttrs struct {
	Channels   int
	KernelSize [2]int
	Strides    [2]int
	Padding    [2]int
	Dilation   [2]int
	Groups     int
	Layout     Layout
	UseBias    bool
}

// Conv2D returns the attributes of a 2D convolution with the given output channels and kernel size,
// unit strides and dilation, no padding, NCHW layout and bias.
func Conv2D(channels, kernelHeight, kernelWidth int) *Conv2DAttrs {
	return &Conv2DAttrs{
		Channels:   channels,
		KernelSize: [2]int{kernelHeight, kernelWidth},
		Strides:    [2]int{1, 1},
		Dilation:   [2]int{1, 1},
		Groups:     1,
		UseBias:    true,
	}
}

func (a *Conv2DAttrs) WithStrides(h, w int) *Conv2DAttrs {
	a.Strides = [2]int{h, w}
	return a
}

func (a *Conv2DAttrs) WithPadding(h, w int) *Conv2DAttrs {
	a.Padding = [2]int{h, w}
	return a
}

func (a *Conv2DAttrs) WithDilation(h, w int) *Conv2DAttrs {
	a.Dilation = [2]int{h, w}
	return a
}

func (a *Conv2DAttrs) WithGroups(groups int) *Conv2DAttrs {
	a.Groups = groups
	return a
}

func (a *Conv2DAttrs) WithLayout(layout Layout) *Conv2DAttrs {
	a.Layout = layout
	return a
}

func (a *Conv2DAttrs) WithBias(useBias bool) *Conv2DAttrs {
	a.UseBias = useBias
	return a
}

func (a *Conv2DAttrs) Op() OpKind { return OpConv2D }

func (a *Conv2DAttrs) NumOutputs() int {
	if a.UseBias {
		return 3
	}
	return 2
}

func (a *Conv2DAttrs) OutputNames() []string {
	return []string{"", "weight", "bias"}[:a.NumOutputs()]
}

func (a *Conv2DAttrs) Validate(numInputs int) error {
	if err := validateWindow(OpConv2D, a.KernelSize, a.Strides, a.Padding, a.Dilation, a.Layout); err != nil {
		return err
	}
	if a.Channels <= 0 {
		return invalidGraphf("%s channels must be > 0, got %d", OpConv2D, a.Channels)
	}
	if a.Groups < 0 || a.Channels%max(a.Groups, 1) != 0 {
		return invalidGraphf("%s channels (%d) must be divisible by groups (%d)", OpConv2D, a.Channels, a.Groups)
	}
	return checkNumInputs(OpConv2D, numInputs, 1)
}

// Conv2DTransposeAttrs configures a 2D transposed convolution.
//
// Zero values of Strides, Dilation and Groups select the default of 1.
// The weight output is laid out as [in_channels, channels/groups, kernel_height, kernel_width].
type Conv2DTransposeAttrs struct {
	Channels      int
	KernelSize    [2]int
	Strides       [2]int
	Padding       [2]int
	OutputPadding [2]int
	Dilation      [2]int
	Groups        int
	Layout        Layout
	UseBias       bool
}

// Conv2DTranspose returns the attributes of a transposed convolution with the given output channels
// and kernel size, unit strides and dilation, no padding, NCHW layout and bias.
func Conv2DTranspose(channels, kernelHeight, kernelWidth int) *Conv2DTransposeAttrs {
	return &Conv2DTransposeAttrs{
		Channels:   channels,
		KernelSize: [2]int{kernelHeight, kernelWidth},
		Strides:    [2]int{1, 1},
		Dilation:   [2]int{1, 1},
		Groups:     1,
		UseBias:    true,
	}
}

func (a *Conv2DTransposeAttrs) WithStrides(h, w int) *Conv2DTransposeAttrs {
	a.Strides = [2]int{h, w}
	return a
}

func (a *Conv2DTransposeAttrs) WithPadding(h, w int) *Conv2DTransposeAttrs {
	a.Padding = [2]int{h, w}
	return a
}

func (a *Conv2DTransposeAttrs) WithOutputPadding(h, w int) *Conv2DTransposeAttrs {
	a.OutputPadding = [2]int{h, w}
	return a
}

func (a *Conv2DTransposeAttrs) WithDilation(h, w int) *Conv2DTransposeAttrs {
	a.Dilation = [2]int{h, w}
	return a
}

func (a *Conv2DTransposeAttrs) WithGroups(groups int) *Conv2DTransposeAttrs {
	a.Groups = groups
	return a
}

func (a *Conv2DTransposeAttrs) WithLayout(layout Layout) *Conv2DTransposeAttrs {
	a.Layout = layout
	return a
}

func (a *Conv2DTransposeAttrs) WithBias(useBias bool) *Conv2DTransposeAttrs {
	a.UseBias = useBias
	return a
}

func (a *Conv2DTransposeAttrs) Op() OpKind { return OpConv2DTranspose }

func (a *Conv2DTransposeAttrs) NumOutputs() int {
	if a.UseBias {
		return 3
	}
	return 2
}

func (a *Conv2DTransposeAttrs) OutputNames() []string {
	return []string{"", "weight", "bias"}[:a.NumOutputs()]
}

func (a *Conv2DTransposeAttrs) Validate(numInputs int) error {
	if err := validateWindow(OpConv2DTranspose, a.KernelSize, a.Strides, a.Padding, a.Dilation, a.Layout); err != nil {
		return err
	}
	if a.Channels <= 0 {
		return invalidGraphf("%s channels must be > 0, got %d", OpConv2DTranspose, a.Channels)
	}
	if a.Groups < 0 || a.Channels%max(a.Groups, 1) != 0 {
		return invalidGraphf("%s channels (%d) must be divisible by groups (%d)", OpConv2DTranspose, a.Channels, a.Groups)
	}
	if a.OutputPadding[0] < 0 || a.OutputPadding[1] < 0 {
		return invalidGraphf("%s output padding must be >= 0, got %v", OpConv2DTranspose, a.OutputPadding)
	}
	return checkNumInputs(OpConv2DTranspose, numInputs, 1)
}

// PoolType selects the reduction of a pooling operator. It doesn't affect shapes.
type PoolType int

const (
	MaxPool PoolType = iota
	AvgPool
)

// Pool2DAttrs configures a 2D max or average pooling.
// Zero values of Strides select the default of 1.
type Pool2DAttrs struct {
	Type     PoolType
	PoolSize [2]int
	Strides  [2]int
	Padding  [2]int
	CeilMode bool
	Layout   Layout
}

// MaxPool2D returns the attributes of a max pooling with the given window, unit strides,
// no padding, floor mode and NCHW layout.
func MaxPool2D(poolHeight, poolWidth int) *Pool2DAttrs {
	return &Pool2DAttrs{Type: MaxPool, PoolSize: [2]int{poolHeight, poolWidth}, Strides: [2]int{1, 1}}
}

// AvgPool2D is like MaxPool2D, for an average pooling.
func AvgPool2D(poolHeight, poolWidth int) *Pool2DAttrs {
	return &Pool2DAttrs{Type: AvgPool, PoolSize: [2]int{poolHeight, poolWidth}, Strides: [2]int{1, 1}}
}

func (a *Pool2DAttrs) WithStrides(h, w int) *Pool2DAttrs {
	a.Strides = [2]int{h, w}
	return a
}

func (a *Pool2DAttrs) WithPadding(h, w int) *Pool2DAttrs {
	a.Padding = [2]int{h, w}
	return a
}

func (a *Pool2DAttrs) WithCeilMode(ceilMode bool) *Pool2DAttrs {
	a.CeilMode = ceilMode
	return a
}

func (a *Pool2DAttrs) WithLayout(layout Layout) *Pool2DAttrs {
	a.Layout = layout
	return a
}

func (a *Pool2DAttrs) Op() OpKind {
	if a.Type == AvgPool {
		return OpAvgPool2D
	}
	return OpMaxPool2D
}

func (a *Pool2DAttrs) NumOutputs() int { return 1 }

func (a *Pool2DAttrs) Validate(numInputs int) error {
	if a.Type != MaxPool && a.Type != AvgPool {
		return invalidGraphf("invalid pool type %d", a.Type)
	}
	if err := validateWindow(a.Op(), a.PoolSize, a.Strides, a.Padding, [2]int{1, 1}, a.Layout); err != nil {
		return err
	}
	return checkNumInputs(a.Op(), numInputs, 1)
}

// GlobalPool2DAttrs configures a global pooling, which reduces both spatial axes to 1.
type GlobalPool2DAttrs struct {
	Type   PoolType
	Layout Layout
}

// GlobalMaxPool2D returns the attributes of a global max pooling with NCHW layout.
func GlobalMaxPool2D() *GlobalPool2DAttrs { return &GlobalPool2DAttrs{Type: MaxPool} }

// GlobalAvgPool2D returns the attributes of a global average pooling with NCHW layout.
func GlobalAvgPool2D() *GlobalPool2DAttrs { return &GlobalPool2DAttrs{Type: AvgPool} }

func (a *GlobalPool2DAttrs) WithLayout(layout Layout) *GlobalPool2DAttrs {
	a.Layout = layout
	return a
}

func (a *GlobalPool2DAttrs) Op() OpKind {
	if a.Type == AvgPool {
		return OpGlobalAvgPool2D
	}
	return OpGlobalMaxPool2D
}

func (a *GlobalPool2DAttrs) NumOutputs() int { return 1 }

func (a *GlobalPool2DAttrs) Validate(numInputs int) error {
	if a.Type != MaxPool && a.Type != AvgPool {
		return invalidGraphf("invalid pool type %d", a.Type)
	}
	if !a.Layout.valid() {
		return invalidGraphf("%s: invalid layout %s", a.Op(), a.Layout)
	}
	return checkNumInputs(a.Op(), numInputs, 1)
}

// Reshape placeholder codes, see ReshapeAttrs.
const (
	ReshapeCopy      = 0
	ReshapeInfer     = -1
	ReshapeCopyRest  = -2
	ReshapeMergeTwo  = -3
	ReshapeSplitInto = -4
)

// ReshapeAttrs configures a Reshape. Shape is the target: each entry is either a
// positive literal dimension or one of the placeholder codes:
//
//   - 0 (ReshapeCopy): copy the input dimension at the current position.
//   - -1 (ReshapeInfer): infer the dimension from the remaining number of elements; at most one.
//   - -2 (ReshapeCopyRest): copy all remaining input dimensions.
//   - -3 (ReshapeMergeTwo): merge the next two input dimensions into one.
//   - -4 (ReshapeSplitInto): split the next input dimension into the two following entries,
//     one of which may be -1.
type ReshapeAttrs struct {
	Shape []int
}

// Reshape returns the attributes of a Reshape with the given target.
func Reshape(target ...int) *ReshapeAttrs { return &ReshapeAttrs{Shape: slices.Clone(target)} }

func (a *ReshapeAttrs) Op() OpKind      { return OpReshape }
func (a *ReshapeAttrs) NumOutputs() int { return 1 }
func (a *ReshapeAttrs) Validate(numInputs int) error {
	if len(a.Shape) == 0 {
		return invalidGraphf("Reshape requires a non-empty target shape")
	}
	for ii, code := range a.Shape {
		if code < ReshapeSplitInto {
			return invalidGraphf("Reshape target %v has invalid code %d at position %d", a.Shape, code, ii)
		}
	}
	return checkNumInputs(OpReshape, numInputs, 1)
}

// validateWindow checks the attributes common to convolutions and poolings.
func validateWindow(op OpKind, kernel, strides, padding, dilation [2]int, layout Layout) error {
	for ii := range 2 {
		if kernel[ii] <= 0 {
			return invalidGraphf("%s window size must be > 0, got %v", op, kernel)
		}
		if strides[ii] < 0 || padding[ii] < 0 || dilation[ii] < 0 {
			return invalidGraphf("%s strides, padding and dilation must be >= 0, got %v, %v and %v",
				op, strides, padding, dilation)
		}
	}
	if !layout.valid() {
		return invalidGraphf("%s: invalid layout %s", op, layout)
	}
	return nil
}
