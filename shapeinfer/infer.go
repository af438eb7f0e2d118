package shapeinfer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultMaxPasses is the default limit of passes over the graph when some rule defers.
const DefaultMaxPasses = 10

// Inferencer runs shape inference on graphs with a given Registry of rules.
//
// It holds no state from one inference to the next, and can be used concurrently.
type Inferencer struct {
	registry        *Registry
	requireComplete bool
	maxPasses       int
}

// NewInferencer returns an Inferencer that uses the rules in registry.
// If registry is nil, StandardRegistry is used.
func NewInferencer(registry *Registry) *Inferencer {
	if registry == nil {
		registry = StandardRegistry()
	}
	return &Inferencer{
		registry:  registry,
		maxPasses: DefaultMaxPasses,
	}
}

// RequireComplete configures whether Infer returns an UnresolvedShape error when some output is not
// fully resolved. The default is false: unresolved outputs are only listed in Result.Unresolved.
func (inf *Inferencer) RequireComplete(requireComplete bool) *Inferencer {
	inf.requireComplete = requireComplete
	return inf
}

// WithMaxPasses sets the maximum number of passes over the graph, used only when some rule
// returns ErrDeferred. Values < 1 are ignored.
func (inf *Inferencer) WithMaxPasses(maxPasses int) *Inferencer {
	if maxPasses >= 1 {
		inf.maxPasses = maxPasses
	}
	return inf
}

// Infer runs shape inference on g with the StandardRegistry. See Inferencer.Infer.
func Infer(g *Graph, known map[string]Shape) (*Result, error) {
	return NewInferencer(nil).Infer(g, known)
}

// Infer deduces the shape of every output of every node in g.
//
// known maps Variable names to shapes supplied by the caller, which are refined with the shapes
// declared in the Variable nodes. It may be nil.
//
// Nodes are visited once in the order given by Schedule. If a rule returns ErrDeferred, further passes
// re-visit the nodes not yet resolved, until nothing changes or the maximum number of passes is reached.
//
// Outputs that remain unknown are listed in Result.Unresolved. If RequireComplete was set, the
// result is returned along with an UnresolvedShape error. Any other error is fatal and the returned
// Result is nil.
func (inf *Inferencer) Infer(g *Graph, known map[string]Shape) (*Result, error) {
	order, err := Schedule(g)
	if err != nil {
		return nil, err
	}
	res := newResult(g, order)
	if err := res.seedVariables(known); err != nil {
		return nil, err
	}

	var deferred sets.Set[NodeID]
	for pass := 1; ; pass++ {
		res.Passes = pass
		deferred = sets.Make[NodeID]()
		changed := false
		for ii, id := range order {
			node := g.Node(id)
			if pass > 1 && res.nodeResolved(id) {
				continue
			}
			nodeChanged, err := inf.visit(res, node)
			if errors.Is(err, ErrDeferred) {
				deferred.Insert(id)
				continue
			}
			if err != nil {
				return nil, errors.WithMessagef(err, "while inferring shapes of node %d out of %d", ii, len(order))
			}
			changed = changed || nodeChanged
		}
		klog.V(1).Infof("shapeinfer: pass %d over %d nodes, %d deferred", pass, len(order), len(deferred))
		if len(deferred) == 0 || (pass > 1 && !changed) || pass >= inf.maxPasses {
			break
		}
	}

	res.collectUnresolved()
	if len(deferred) > 0 {
		klog.V(1).Infof("shapeinfer: %d node(s) still deferred after %d pass(es)", len(deferred), res.Passes)
	}
	if inf.requireComplete && len(res.Unresolved) > 0 {
		return res, res.unresolvedError()
	}
	return res, nil
}

// visit runs the rule of the node and refines its outputs. It returns whether any of the outputs changed.
func (inf *Inferencer) visit(res *Result, node *Node) (changed bool, err error) {
	rule, found := inf.registry.Lookup(node.Op())
	if !found {
		return false, &Error{
			Kind:     UnknownOperator,
			Node:     node.ID,
			NodeName: node.Name,
			Op:       node.Op(),
			Axis:     -1,
			Msg:      fmt.Sprintf("no shape rule registered for %s", node.Op()),
		}
	}
	inputs := make([]Shape, len(node.Inputs))
	for ii, input := range node.Inputs {
		inputs[ii] = res.Shape(input)
	}

	var outputs []Shape
	var ruleErr error
	err = exceptions.TryCatch[error](func() { outputs, ruleErr = rule(node, inputs) })
	if err == nil {
		err = ruleErr
	}
	if err != nil {
		if errors.Is(err, ErrDeferred) {
			klog.V(2).Infof("shapeinfer: node %s deferred", node)
			return false, ErrDeferred
		}
		return false, asError(err, node)
	}
	if len(outputs) != node.NumOutputs() {
		return false, asError(errors.Errorf("rule returned %d shapes for %d outputs", len(outputs), node.NumOutputs()), node)
	}

	current := res.shapes[node.ID]
	for ii, output := range outputs {
		refined, err := current[ii].Refine(output)
		if err != nil {
			conflict := asError(err, node).(*Error)
			conflict.Output = ii
			return false, conflict
		}
		if !refined.Equal(current[ii]) {
			current[ii] = refined
			changed = true
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("shapeinfer: %s inputs=%v outputs=%v", node, inputs, current)
	}
	return changed, nil
}

// seedVariables initializes the shapes of Variables from their declarations and the known shapes.
func (r *Result) seedVariables(known map[string]Shape) error {
	unknownNames := sets.Make[string]()
	for name := range known {
		node := r.graph.NodeByName(name)
		if node == nil || node.Op() != OpVariable {
			unknownNames.Insert(name)
		}
	}
	if len(unknownNames) > 0 {
		return invalidGraphf("known shapes given for names that are not Variables: %q",
			slices.Sorted(maps.Keys(unknownNames)))
	}

	for _, node := range r.graph.Nodes() {
		if node.Op() != OpVariable {
			continue
		}
		var declared Shape
		if attrs, ok := node.Attrs.(*VariableAttrs); ok {
			declared = attrs.Shape
		}
		shape, found := known[node.Name]
		if !found {
			r.shapes[node.ID][0] = declared
			continue
		}
		refined, err := declared.Refine(shape)
		if err != nil {
			return asError(err, node)
		}
		r.shapes[node.ID][0] = refined
	}
	return nil
}
