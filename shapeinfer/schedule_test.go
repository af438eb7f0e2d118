package shapeinfer

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	t.Run("DeclarationOrder", func(t *testing.T) {
		b := NewBuilder()
		x := b.Variable("x", MakeShape(10, 20))
		y := b.Variable("y", MakeShape(10, 30))
		concat := b.Add("concat", Concatenate(), x, y)
		b.Add("exp", Unary("exp"), concat)
		g := must.M1(b.Build())
		order, err := Schedule(g)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{0, 1, 2, 3}, order)
	})

	t.Run("TieBreakBySmallestID", func(t *testing.T) {
		// Nodes declared out of dependency order: #0 depends on #2, #1 depends on nothing.
		nodes := []*Node{
			{ID: 0, Name: "a", Attrs: Unary("exp"), Inputs: []OutputRef{{Node: 2}}},
			{ID: 1, Name: "b", Attrs: Variable(MakeShape(3))},
			{ID: 2, Name: "c", Attrs: Variable(MakeShape(4))},
			{ID: 3, Name: "d", Attrs: Binary("add"), Inputs: []OutputRef{{Node: 1}, {Node: 1}}},
		}
		g := must.M1(NewGraph(nodes))
		order, err := Schedule(g)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{1, 2, 0, 3}, order)

		// Deterministic.
		for range 10 {
			again, err := Schedule(g)
			require.NoError(t, err)
			assert.Equal(t, order, again)
		}
	})

	t.Run("Cycle", func(t *testing.T) {
		nodes := []*Node{
			{ID: 0, Name: "x", Attrs: Variable(MakeShape(3))},
			{ID: 1, Name: "a", Attrs: Binary("add"), Inputs: []OutputRef{{Node: 0}, {Node: 2}}},
			{ID: 2, Name: "b", Attrs: Unary("exp"), Inputs: []OutputRef{{Node: 1}}},
			{ID: 3, Name: "c", Attrs: Unary("exp"), Inputs: []OutputRef{{Node: 2}}},
		}
		g := must.M1(NewGraph(nodes))
		_, err := Schedule(g)
		require.ErrorIs(t, err, ErrCycleDetected)
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, []NodeID{1, 2, 3}, e.Cycle)
		assert.Equal(t, NodeID(1), e.Node)
		assert.Contains(t, err.Error(), `"a"`)

		_, err = Infer(g, nil)
		require.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("SelfLoop", func(t *testing.T) {
		nodes := []*Node{
			{ID: 0, Name: "a", Attrs: Unary("exp"), Inputs: []OutputRef{{Node: 0}}},
		}
		g := must.M1(NewGraph(nodes))
		_, err := Schedule(g)
		require.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("Empty", func(t *testing.T) {
		g := must.M1(NewGraph(nil))
		order, err := Schedule(g)
		require.NoError(t, err)
		assert.Empty(t, order)
	})
}

func TestNewGraph(t *testing.T) {
	testCases := []struct {
		name  string
		nodes []*Node
	}{
		{"NilNode", []*Node{nil}},
		{"WrongID", []*Node{{ID: 1, Name: "x", Attrs: Variable(MakeShape(1))}}},
		{"NoName", []*Node{{ID: 0, Attrs: Variable(MakeShape(1))}}},
		{"DuplicateName", []*Node{
			{ID: 0, Name: "x", Attrs: Variable(MakeShape(1))},
			{ID: 1, Name: "x", Attrs: Variable(MakeShape(1))},
		}},
		{"NoAttrs", []*Node{{ID: 0, Name: "x"}}},
		{"WrongNumInputs", []*Node{
			{ID: 0, Name: "x", Attrs: Variable(MakeShape(1))},
			{ID: 1, Name: "y", Attrs: Binary("add"), Inputs: []OutputRef{{Node: 0}}},
		}},
		{"DanglingNode", []*Node{
			{ID: 0, Name: "y", Attrs: Unary("exp"), Inputs: []OutputRef{{Node: 5}}},
		}},
		{"DanglingOutput", []*Node{
			{ID: 0, Name: "x", Attrs: Variable(MakeShape(1))},
			{ID: 1, Name: "y", Attrs: Unary("exp"), Inputs: []OutputRef{{Node: 0, Index: 1}}},
		}},
		{"InvalidAttrs", []*Node{
			{ID: 0, Name: "x", Attrs: Variable(MakeShape(1))},
			{ID: 1, Name: "y", Attrs: &SplitAttrs{Sections: 2, Sizes: []int{1, 1}}, Inputs: []OutputRef{{Node: 0}}},
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGraph(tc.nodes)
			require.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	x := b.Variable("x", MakeShape(10, 20))
	split := b.Add("split", SplitSections(2), x)
	b.Add("sum", Binary("add"), split.Output(0), split.Output(1))
	g, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 4, g.NumOutputs())
	assert.Equal(t, []OutputRef{{Node: 1, Index: 0}, {Node: 1, Index: 1}}, g.NodeByName("sum").Inputs)
	assert.Nil(t, g.NodeByName("missing"))

	t.Run("NilInput", func(t *testing.T) {
		b := NewBuilder()
		var missing *Node
		b.Add("y", Unary("exp"), missing)
		_, err := b.Build()
		require.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("ForwardReference", func(t *testing.T) {
		b := NewBuilder()
		b.Add("y", Unary("exp"), OutputRef{Node: 3})
		_, err := b.Build()
		require.ErrorIs(t, err, ErrInvalidGraph)
		assert.Contains(t, err.Error(), `"y"`)
	})
}
