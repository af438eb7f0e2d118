package shapeinfer

import (
	"container/heap"
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// Schedule returns the nodes of g in topological order: every node comes after all nodes
// it takes inputs from.
//
// Among the nodes whose dependencies are all scheduled, the one declared first goes first,
// so the order is deterministic, and it is the declaration order if that is already topological.
//
// It fails with a CycleDetected error, listing the nodes that could not be scheduled, if g has a cycle.
func Schedule(g *Graph) ([]NodeID, error) {
	numNodes := g.Len()

	// Build the reverse dependency map: repeated inputs from the same producer count once.
	dependents := make([][]NodeID, numNodes)
	pending := make([]int, numNodes)
	for _, node := range g.Nodes() {
		producers := sets.Make[NodeID](len(node.Inputs))
		for _, input := range node.Inputs {
			producers.Insert(input.Node)
		}
		pending[node.ID] = len(producers)
		for producer := range producers {
			dependents[producer] = append(dependents[producer], node.ID)
		}
	}

	ready := &nodeQueue{}
	for id, count := range pending {
		if count == 0 {
			ready.ids = append(ready.ids, NodeID(id))
		}
	}
	heap.Init(ready)

	order := make([]NodeID, 0, numNodes)
	for ready.Len() > 0 {
		id := heap.Pop(ready).(NodeID)
		order = append(order, id)
		for _, dependent := range dependents[id] {
			pending[dependent]--
			if pending[dependent] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}

	if len(order) != numNodes {
		var cycle []NodeID
		for id, count := range pending {
			if count > 0 {
				cycle = append(cycle, NodeID(id))
			}
		}
		slices.Sort(cycle)
		names := make([]string, len(cycle))
		for ii, id := range cycle {
			names[ii] = fmt.Sprintf("%q", g.Node(id).Name)
		}
		return nil, &Error{
			Kind:     CycleDetected,
			Node:     cycle[0],
			NodeName: g.Node(cycle[0]).Name,
			Op:       g.Node(cycle[0]).Op(),
			Axis:     -1,
			Cycle:    cycle,
			Msg: fmt.Sprintf("scheduled %d out of %d nodes, nodes [%s] are in or after a cycle",
				len(order), numNodes, strings.Join(names, ", ")),
		}
	}
	return order, nil
}

// nodeQueue is a min-heap of node ids, implementing heap.Interface.
type nodeQueue struct {
	ids []NodeID
}

func (q *nodeQueue) Len() int           { return len(q.ids) }
func (q *nodeQueue) Less(i, j int) bool { return q.ids[i] < q.ids[j] }
func (q *nodeQueue) Swap(i, j int)      { q.ids[i], q.ids[j] = q.ids[j], q.ids[i] }
func (q *nodeQueue) Push(x any)         { q.ids = append(q.ids, x.(NodeID)) }
func (q *nodeQueue) Pop() any {
	last := q.ids[len(q.ids)-1]
	q.ids = q.ids[:len(q.ids)-1]
	return last
}
