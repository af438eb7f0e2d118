package shapeinfer

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// NodeID identifies a node: it is its index in the declaration order of the Graph.
type NodeID int

// OutputRef refers to one output of a node.
type OutputRef struct {
	Node  NodeID
	Index int
}

// String implements fmt.Stringer.
func (r OutputRef) String() string {
	return fmt.Sprintf("#%d:%d", r.Node, r.Index)
}

func (r OutputRef) outputRef() OutputRef { return r }

// Input is anything that can be used as a node input: an OutputRef, or a *Node (its first output).
type Input interface {
	outputRef() OutputRef
}

// Node is an operator in the Graph.
type Node struct {
	ID     NodeID
	Name   string
	Attrs  Attributes
	Inputs []OutputRef
}

// Op returns the operator kind of the node.
func (n *Node) Op() OpKind {
	if n.Attrs == nil {
		return OpInvalid
	}
	return n.Attrs.Op()
}

// NumOutputs returns the output arity of the node.
func (n *Node) NumOutputs() int { return n.Attrs.NumOutputs() }

// Output returns a reference to the node's output at the given index.
func (n *Node) Output(index int) OutputRef { return OutputRef{Node: n.ID, Index: index} }

func (n *Node) outputRef() OutputRef { return n.Output(0) }

// OutputName returns the name of the node's output: the node name for the primary output,
// "<node>_<aux>" for named auxiliary outputs (e.g. "fc_bias"), and "<node>:<index>" otherwise.
func (n *Node) OutputName(index int) string {
	if namer, ok := n.Attrs.(OutputNamer); ok {
		names := namer.OutputNames()
		if index < len(names) && names[index] != "" {
			return n.Name + "_" + names[index]
		}
	}
	if index == 0 {
		return n.Name
	}
	return fmt.Sprintf("%s:%d", n.Name, index)
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("#%d %q (%s)", n.ID, n.Name, n.Op())
}

// Graph is a read-only DAG of nodes. Create it with NewGraph or with a Builder.
type Graph struct {
	nodes  []*Node
	byName map[string]NodeID
}

// NewGraph validates the nodes and returns the corresponding Graph. It takes ownership of the nodes,
// which must not be changed afterward.
//
// Node IDs must match their position in nodes, names must be unique and non-empty, attributes must
// validate, and inputs must refer to existing outputs. Acyclicity is not checked here: Schedule
// fails with CycleDetected on a cyclic graph.
func NewGraph(nodes []*Node) (*Graph, error) {
	g := &Graph{
		nodes:  nodes,
		byName: make(map[string]NodeID, len(nodes)),
	}
	names := sets.Make[string](len(nodes))
	for ii, node := range nodes {
		if node == nil {
			return nil, invalidGraphf("node #%d is nil", ii)
		}
		if node.ID != NodeID(ii) {
			return nil, invalidGraphf("node %q declared at position %d has id %d", node.Name, ii, node.ID)
		}
		if node.Name == "" {
			return nil, invalidGraphf("node #%d has no name", ii)
		}
		if names.Has(node.Name) {
			return nil, invalidGraphf("node #%d name %q is not unique", ii, node.Name)
		}
		names.Insert(node.Name)
		g.byName[node.Name] = node.ID
		if node.Attrs == nil {
			return nil, invalidGraphf("node %s has no attributes", node)
		}
		if err := node.Attrs.Validate(len(node.Inputs)); err != nil {
			return nil, asError(err, node)
		}
		if node.NumOutputs() < 1 {
			return nil, asError(invalidGraphf("output arity must be >= 1, got %d", node.NumOutputs()), node)
		}
	}
	for _, node := range nodes {
		for inputIdx, input := range node.Inputs {
			if input.Node < 0 || int(input.Node) >= len(nodes) {
				return nil, asError(invalidGraphf("input #%d refers to unknown node %s", inputIdx, input), node)
			}
			producer := nodes[input.Node]
			if input.Index < 0 || input.Index >= producer.NumOutputs() {
				return nil, asError(invalidGraphf("input #%d refers to output %d of %s, which has %d output(s)",
					inputIdx, input.Index, producer, producer.NumOutputs()), node)
			}
		}
	}
	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Nodes returns the nodes in declaration order. The slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NodeByName returns the node with the given name, or nil if there is none.
func (g *Graph) NodeByName(name string) *Node {
	id, found := g.byName[name]
	if !found {
		return nil
	}
	return g.nodes[id]
}

// NumOutputs returns the total number of outputs of all nodes.
func (g *Graph) NumOutputs() int {
	total := 0
	for _, node := range g.nodes {
		total += node.NumOutputs()
	}
	return total
}
