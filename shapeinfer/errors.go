package shapeinfer

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies the errors returned by the package.
type ErrorKind int

const (
	// InvalidGraph is returned when a graph fails validation at construction time
	// (dangling references, duplicate names, invalid attributes).
	InvalidGraph ErrorKind = iota + 1

	// CycleDetected is returned by the scheduler when the graph is not a DAG.
	CycleDetected

	// UnknownOperator is returned when the registry has no rule for a node's operator.
	UnknownOperator

	// ShapeConflict is returned when two constraints on the same dimension disagree.
	ShapeConflict

	// UnresolvedShape is returned when complete resolution was required but some outputs
	// remained (partially) unknown.
	UnresolvedShape
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case InvalidGraph:
		return "invalid graph"
	case CycleDetected:
		return "cycle detected"
	case UnknownOperator:
		return "unknown operator"
	case ShapeConflict:
		return "shape conflict"
	case UnresolvedShape:
		return "unresolved shape"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels to be used with errors.Is.
var (
	ErrInvalidGraph    = &Error{Kind: InvalidGraph}
	ErrCycleDetected   = &Error{Kind: CycleDetected}
	ErrUnknownOperator = &Error{Kind: UnknownOperator}
	ErrShapeConflict   = &Error{Kind: ShapeConflict}
	ErrUnresolvedShape = &Error{Kind: UnresolvedShape}
)

// noNode marks errors not attributable to a single node.
const noNode NodeID = -1

// Error is the error type returned by graph construction, scheduling and inference.
//
// Node, NodeName and Op identify the offending node, if any (Node is -1 otherwise).
// For ShapeConflict, Got and Want hold the two conflicting values and Axis the axis they
// refer to (-1 if not about a single axis). For CycleDetected, Cycle lists the nodes that could
// not be scheduled. For UnresolvedShape, Unresolved lists every output left unknown.
type Error struct {
	Kind     ErrorKind
	Node     NodeID
	NodeName string
	Op       OpKind
	Output   int
	Axis     int
	Got      int
	Want     int

	Cycle      []NodeID
	Unresolved []OutputRef

	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Node != noNode && e.NodeName != "" {
		fmt.Fprintf(&sb, " in node #%d %q (%s)", e.Node, e.NodeName, e.Op)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	return sb.String()
}

// Is makes errors.Is match any *Error of the same Kind, in particular the Err* sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// atNode attributes the error to the node, unless it is already attributed.
func (e *Error) atNode(node *Node) *Error {
	if e.Node != noNode || node == nil {
		return e
	}
	e.Node = node.ID
	e.NodeName = node.Name
	e.Op = node.Op()
	return e
}

// Conflictf returns a ShapeConflict error carrying the two conflicting values.
// Shape rules use it to report disagreements; the driver attributes it to the node being visited.
func Conflictf(got, want int, format string, args ...any) error {
	return &Error{
		Kind: ShapeConflict,
		Node: noNode,
		Axis: -1,
		Got:  got,
		Want: want,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// axisConflictf is Conflictf for a conflict on one specific axis.
func axisConflictf(axis, got, want int, format string, args ...any) error {
	err := Conflictf(got, want, format, args...).(*Error)
	err.Axis = axis
	return err
}

func invalidGraphf(format string, args ...any) error {
	return &Error{
		Kind: InvalidGraph,
		Node: noNode,
		Axis: -1,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// asError returns err as an *Error attributed to node. Errors of other types (from custom
// attributes and rules, or panics caught while evaluating a rule) are wrapped with the node context.
func asError(err error, node *Node) error {
	var e *Error
	if errors.As(err, &e) {
		return e.atNode(node)
	}
	return errors.WithMessagef(err, "in node #%d %q (%s)", node.ID, node.Name, node.Op())
}
