package shapeinfer

import (
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Rule infers the output shapes of a node from the shapes of its inputs and its attributes.
//
// Input shapes may be totally or partially unknown, and rules should propagate unknown dimensions
// rather than guess. It must return exactly node.NumOutputs() shapes, or ErrDeferred if the outputs
// can't be resolved yet, or an error (usually from Conflictf) if the inputs are inconsistent.
//
// Rules must be pure functions: they may be called more than once for the same node.
type Rule func(node *Node, inputs []Shape) ([]Shape, error)

// ErrDeferred is returned by a Rule that can't resolve its outputs yet. The driver will try again
// in a later pass.
var ErrDeferred = errors.New("shape inference deferred")

// Registry maps operator kinds to their shape rules. It is immutable: create it with a RegistryBuilder.
// It is safe for concurrent use.
type Registry struct {
	rules map[OpKind]Rule
}

// Lookup returns the rule for the operator kind.
func (r *Registry) Lookup(op OpKind) (Rule, bool) {
	rule, found := r.rules[op]
	return rule, found
}

// Ops returns the sorted list of operator kinds with a registered rule.
func (r *Registry) Ops() []OpKind {
	return slices.Sorted(maps.Keys(r.rules))
}

// RegistryBuilder collects the rules for a Registry. It is meant to be used once, during
// initialization, and then discarded.
type RegistryBuilder struct {
	rules map[OpKind]Rule
}

// NewRegistryBuilder returns an empty RegistryBuilder. Use RegisterStandardRules to start from the
// rules of the operators defined in this package.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{rules: make(map[OpKind]Rule)}
}

// Register adds the rule for the operator kind.
//
// It panics if the operator kind already has a rule or if rule is nil.
func (b *RegistryBuilder) Register(op OpKind, rule Rule) *RegistryBuilder {
	if rule == nil {
		exceptions.Panicf("RegistryBuilder.Register(%s): nil rule", op)
	}
	if _, found := b.rules[op]; found {
		exceptions.Panicf("RegistryBuilder.Register(%s): operator already registered", op)
	}
	b.rules[op] = rule
	return b
}

// Build returns the immutable Registry. The builder can still be used to build other registries.
func (b *RegistryBuilder) Build() *Registry {
	return &Registry{rules: maps.Clone(b.rules)}
}

// RegisterStandardRules registers the rules of all the operators defined in this package.
func RegisterStandardRules(b *RegistryBuilder) *RegistryBuilder {
	return b.
		Register(OpVariable, variableRule).
		Register(OpElementwiseUnary, unaryRule).
		Register(OpElementwiseBinary, binaryRule).
		Register(OpDense, denseRule).
		Register(OpFlatten, flattenRule).
		Register(OpConcatenate, concatenateRule).
		Register(OpSplit, splitRule).
		Register(OpBatchNorm, batchNormRule).
		Register(OpConv2D, conv2DRule).
		Register(OpConv2DTranspose, conv2DTransposeRule).
		Register(OpMaxPool2D, pool2DRule).
		Register(OpAvgPool2D, pool2DRule).
		Register(OpGlobalMaxPool2D, globalPool2DRule).
		Register(OpGlobalAvgPool2D, globalPool2DRule).
		Register(OpReshape, reshapeRule)
}

// StandardRegistry returns the Registry with the rules of all operators defined in this package.
// It is built once and shared.
var StandardRegistry = sync.OnceValue(func() *Registry {
	return RegisterStandardRules(NewRegistryBuilder()).Build()
})

// attrsAs returns the node attributes as the concrete type expected by a rule.
// It panics if the node has attributes of another type: the driver reports it as an error.
func attrsAs[T Attributes](node *Node) T {
	attrs, ok := node.Attrs.(T)
	if !ok {
		var want T
		exceptions.Panicf("node %s has attributes of type %T, but its rule expects %T", node, node.Attrs, want)
	}
	return attrs
}
