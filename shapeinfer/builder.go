package shapeinfer

// Builder incrementally declares the nodes of a Graph.
//
// Nodes can only refer to previously declared nodes, so a built graph is always acyclic.
// Errors are deferred: the first one is returned by Build.
//
// Example:
//
//	b := shapeinfer.NewBuilder()
//	x := b.Variable("x", shapeinfer.MakeShape(10, 20))
//	fc := b.Add("fc", shapeinfer.Dense(30), x)
//	g, err := b.Build()
type Builder struct {
	nodes []*Node
	err   error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Variable declares a Variable node with the given (possibly unknown) shape.
func (b *Builder) Variable(name string, shape Shape) *Node {
	return b.Add(name, Variable(shape))
}

// Add declares a node with the given attributes and inputs, and returns it.
// Use node.Output(i) to refer to outputs other than the first.
func (b *Builder) Add(name string, attrs Attributes, inputs ...Input) *Node {
	node := &Node{
		ID:     NodeID(len(b.nodes)),
		Name:   name,
		Attrs:  attrs,
		Inputs: make([]OutputRef, len(inputs)),
	}
	for ii, input := range inputs {
		if n, isNode := input.(*Node); input == nil || (isNode && n == nil) {
			b.setErr(asError(invalidGraphf("input #%d is nil", ii), node))
			continue
		}
		node.Inputs[ii] = input.outputRef()
		if node.Inputs[ii].Node >= node.ID {
			b.setErr(asError(invalidGraphf("input #%d refers to node %s, not declared before it", ii, node.Inputs[ii]), node))
		}
	}
	b.nodes = append(b.nodes, node)
	return node
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the declared nodes and returns the Graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewGraph(b.nodes)
}
