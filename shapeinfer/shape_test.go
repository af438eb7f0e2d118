package shapeinfer

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := MakeShape(10, 0, 30)
	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, []int{10, 0, 30}, s.Dims())
	assert.Equal(t, 30, s.Dim(-1))
	assert.Equal(t, 0, s.Dim(1))
	assert.False(t, s.IsUnknown())
	assert.False(t, s.IsFullyKnown())
	_, ok := s.Size()
	assert.False(t, ok)
	assert.Equal(t, "(10, ?, 30)", s.String())
	assert.Panics(t, func() { s.Dim(3) })

	// Dims returns a copy.
	dims := s.Dims()
	dims[0] = 7
	assert.Equal(t, 10, s.Dim(0))

	full := MakeShape(2, 3, 4)
	size, ok := full.Size()
	require.True(t, ok)
	assert.Equal(t, 24, size)
	assert.True(t, full.IsFullyKnown())

	unknown := UnknownShape()
	assert.True(t, unknown.IsUnknown())
	assert.False(t, unknown.IsFullyKnown())
	assert.Equal(t, "(?)", unknown.String())
	assert.True(t, unknown.Equal(Shape{}))

	assert.Panics(t, func() { MakeShape(1, -1) })
}

func TestRefine(t *testing.T) {
	t.Run("Unknown", func(t *testing.T) {
		s := MakeShape(10, 20)
		refined, err := UnknownShape().Refine(s)
		require.NoError(t, err)
		assert.True(t, refined.Equal(s))
		refined, err = s.Refine(UnknownShape())
		require.NoError(t, err)
		assert.True(t, refined.Equal(s))
	})

	t.Run("Partial", func(t *testing.T) {
		refined, err := MakeShape(10, 0, 0).Refine(MakeShape(0, 20, 0))
		require.NoError(t, err)
		assert.Equal(t, []int{10, 20, 0}, refined.Dims())
	})

	t.Run("RankMismatch", func(t *testing.T) {
		_, err := MakeShape(10, 20).Refine(MakeShape(10, 20, 1))
		require.ErrorIs(t, err, ErrShapeConflict)
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, 3, e.Got)
		assert.Equal(t, 2, e.Want)
		assert.Equal(t, -1, e.Axis)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := MakeShape(10, 20).Refine(MakeShape(10, 21))
		require.ErrorIs(t, err, ErrShapeConflict)
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, 1, e.Axis)
		assert.Equal(t, 21, e.Got)
		assert.Equal(t, 20, e.Want)
		assert.Contains(t, err.Error(), "20")
		assert.Contains(t, err.Error(), "21")
	})
}

func TestShapeGoMLX(t *testing.T) {
	gomlxShape, err := MakeShape(4, 10).GoMLX(dtypes.Float32)
	require.NoError(t, err)
	assert.True(t, gomlxShape.Equal(shapes.Make(dtypes.Float32, 4, 10)))

	_, err = MakeShape(4, 0).GoMLX(dtypes.Float32)
	require.Error(t, err)

	s := ShapeFromGoMLX(shapes.Make(dtypes.Int64, 3, 5))
	assert.Equal(t, []int{3, 5}, s.Dims())
}
