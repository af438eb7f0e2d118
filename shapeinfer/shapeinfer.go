// Package shapeinfer infers the shapes of the outputs of every node of a dataflow graph of tensor operators.
//
//   - Graph: an immutable DAG of Nodes, each with an operator kind (OpKind), typed Attributes and
//     references to outputs of other nodes. Build it with a Builder, or with NewGraph.
//   - Schedule: the deterministic topological order in which nodes are visited.
//   - Registry: maps each OpKind to its Rule, a pure function from input shapes to output shapes.
//     StandardRegistry has the rules of all operators defined in this package, and custom operators
//     (from OpFirstCustom on) can be added with a RegistryBuilder.
//   - Infer (or an Inferencer): runs the rules in schedule order and returns a Result with the shapes
//     of all outputs, and the list of outputs that could not be fully resolved.
//
// Shapes may be totally unknown (no dimensions) or partially unknown (some dimensions are 0). Rules
// propagate what is known, and two known values that disagree are reported as a ShapeConflict Error.
//
// Example:
//
//	b := shapeinfer.NewBuilder()
//	x := b.Variable("x", shapeinfer.MakeShape(10, 20))
//	b.Add("fc", shapeinfer.Dense(30), x)
//	g, err := b.Build()
//	if err != nil { ... }
//	res, err := shapeinfer.Infer(g, nil)
//	if err != nil { ... }
//	fcBias, _ := res.Lookup("fc_bias") // (30)
package shapeinfer
