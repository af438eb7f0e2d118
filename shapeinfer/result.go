package shapeinfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Result holds the shapes inferred for every output of every node of a Graph.
// It is owned by the caller: nothing else holds a reference to it.
type Result struct {
	graph  *Graph
	shapes [][]Shape

	// Order is the order in which the nodes were visited, see Schedule.
	Order []NodeID

	// Unresolved lists, in node order, the outputs whose shapes are totally or partially unknown.
	Unresolved []OutputRef

	// Passes is the number of passes over the graph. It is 1 unless some rule deferred.
	Passes int
}

func newResult(g *Graph, order []NodeID) *Result {
	r := &Result{
		graph:  g,
		shapes: make([][]Shape, g.Len()),
		Order:  order,
	}
	for _, node := range g.Nodes() {
		r.shapes[node.ID] = make([]Shape, node.NumOutputs())
	}
	return r
}

// Graph returns the graph the shapes were inferred for.
func (r *Result) Graph() *Graph { return r.graph }

// Shape returns the shape of the given output.
func (r *Result) Shape(ref OutputRef) Shape {
	return r.shapes[ref.Node][ref.Index]
}

// Outputs returns the shapes of all outputs of the node.
func (r *Result) Outputs(id NodeID) []Shape {
	return append([]Shape(nil), r.shapes[id]...)
}

// Lookup returns the shape of an output by name: the node name for its primary output,
// "<node>_<aux>" for named auxiliary outputs (e.g. "fc_bias" or "bn_gamma"), or "<node>:<index>".
func (r *Result) Lookup(name string) (Shape, bool) {
	ref, found := r.resolveName(name)
	if !found {
		return Shape{}, false
	}
	return r.Shape(ref), true
}

func (r *Result) resolveName(name string) (OutputRef, bool) {
	if node := r.graph.NodeByName(name); node != nil {
		return node.Output(0), true
	}
	if idx := strings.LastIndexByte(name, ':'); idx > 0 {
		if node := r.graph.NodeByName(name[:idx]); node != nil {
			index, err := strconv.Atoi(name[idx+1:])
			if err == nil && index >= 0 && index < node.NumOutputs() {
				return node.Output(index), true
			}
		}
	}
	for idx := strings.LastIndexByte(name, '_'); idx > 0; idx = strings.LastIndexByte(name[:idx], '_') {
		node := r.graph.NodeByName(name[:idx])
		if node == nil {
			continue
		}
		for index := range node.NumOutputs() {
			if node.OutputName(index) == name {
				return node.Output(index), true
			}
		}
	}
	return OutputRef{}, false
}

// Complete returns whether every output has a fully known shape.
func (r *Result) Complete() bool { return len(r.Unresolved) == 0 }

// GoMLXShape returns the given output's shape as a GoMLX shape with the given dtype.
// It fails if the shape is not fully known.
func (r *Result) GoMLXShape(ref OutputRef, dtype dtypes.DType) (shapes.Shape, error) {
	shape, err := r.Shape(ref).GoMLX(dtype)
	if err != nil {
		return shape, errors.WithMessagef(err, "output %q", r.graph.Node(ref.Node).OutputName(ref.Index))
	}
	return shape, nil
}

func (r *Result) nodeResolved(id NodeID) bool {
	for _, shape := range r.shapes[id] {
		if !shape.IsFullyKnown() {
			return false
		}
	}
	return true
}

func (r *Result) collectUnresolved() {
	r.Unresolved = nil
	for _, node := range r.graph.Nodes() {
		for index, shape := range r.shapes[node.ID] {
			if !shape.IsFullyKnown() {
				r.Unresolved = append(r.Unresolved, node.Output(index))
			}
		}
	}
}

func (r *Result) unresolvedError() error {
	names := make([]string, len(r.Unresolved))
	for ii, ref := range r.Unresolved {
		node := r.graph.Node(ref.Node)
		names[ii] = fmt.Sprintf("%s=%s", node.OutputName(ref.Index), r.Shape(ref))
	}
	first := r.graph.Node(r.Unresolved[0].Node)
	return &Error{
		Kind:       UnresolvedShape,
		Node:       first.ID,
		NodeName:   first.Name,
		Op:         first.Op(),
		Output:     r.Unresolved[0].Index,
		Axis:       -1,
		Unresolved: append([]OutputRef(nil), r.Unresolved...),
		Msg:        fmt.Sprintf("%d output(s) not fully resolved: %s", len(r.Unresolved), strings.Join(names, ", ")),
	}
}

// String implements fmt.Stringer, and pretty prints the inferred shapes, one output per line.
func (r *Result) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		buf.WriteString(fmt.Sprintf(format, args...))
	}
	w("Shapes (%d nodes, %d pass(es)):\n", r.graph.Len(), r.Passes)
	for _, node := range r.graph.Nodes() {
		for index, shape := range r.shapes[node.ID] {
			w("\t%s\t%s\t%s\n", node.OutputName(index), node.Op(), shape)
		}
	}
	if len(r.Unresolved) > 0 {
		w("\t# unresolved:\t%d\n", len(r.Unresolved))
	}
	return buf.String()
}

// jsonTable is the row-pointer table of shapes: the shapes of the outputs of node i are
// Shape[NodeRowPtr[i]:NodeRowPtr[i+1]].
type jsonTable struct {
	Nodes      []string `json:"nodes"`
	NodeRowPtr []int    `json:"node_row_ptr"`
	Shape      [][]int  `json:"shape"`
}

// MarshalJSON implements json.Marshaler. It encodes the shapes as a flat table indexed by
// a per-node row pointer. Totally unknown shapes are encoded as empty lists.
func (r *Result) MarshalJSON() ([]byte, error) {
	table := jsonTable{
		Nodes:      make([]string, 0, r.graph.Len()),
		NodeRowPtr: make([]int, 0, r.graph.Len()+1),
		Shape:      make([][]int, 0, r.graph.NumOutputs()),
	}
	table.NodeRowPtr = append(table.NodeRowPtr, 0)
	for _, node := range r.graph.Nodes() {
		table.Nodes = append(table.Nodes, node.Name)
		for _, shape := range r.shapes[node.ID] {
			dims := shape.Dims()
			if dims == nil {
				dims = []int{}
			}
			table.Shape = append(table.Shape, dims)
		}
		table.NodeRowPtr = append(table.NodeRowPtr, len(table.Shape))
	}
	return json.Marshal(table)
}
